package account

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/validate"
	"storefront/pkg/kv"
	"storefront/pkg/notify"

	"go.uber.org/zap"
)

// MinPasswordLen 密码最短长度。
const MinPasswordLen = 6

// minPhoneDigits 手机号归一化后的最少位数。
const minPhoneDigits = 7

// Options 构造 Directory 所需的依赖。Hasher/Clock/Validator 为空时使用默认实现。
type Options struct {
	UsersKey   string
	SessionKey string
	Hasher     PasswordHasher
	Clock      Clock
	Validator  *validate.Validator
	Logger     *zap.Logger
}

// Directory 管理账号与当前会话。账号列表与会话分别存放在两个 key 下，
// 会话保存的是去掉密码哈希后的 Profile。
type Directory struct {
	store      kv.Store
	usersKey   string
	sessionKey string
	hasher     PasswordHasher
	clock      Clock
	validator  *validate.Validator
	log        *zap.Logger

	feed  notify.Feed[*model.Profile]
	unsub func()
}

func NewDirectory(store kv.Store, opts Options) *Directory {
	if opts.Hasher == nil {
		opts.Hasher = BcryptHasher{}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Validator == nil {
		opts.Validator = validate.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	d := &Directory{
		store:      store,
		usersKey:   opts.UsersKey,
		sessionKey: opts.SessionKey,
		hasher:     opts.Hasher,
		clock:      opts.Clock,
		validator:  opts.Validator,
		log:        opts.Logger.With(zap.String("component", "account")),
	}
	d.unsub = store.Subscribe(func(c kv.Change) {
		if c.Key != d.sessionKey || d.feed.Len() == 0 {
			return
		}
		d.feed.Emit(d.CurrentUser(context.Background()))
	})
	return d
}

// Subscribe 监听 "session changed"；未登录时参数为 nil。
func (d *Directory) Subscribe(fn func(*model.Profile)) (cancel func()) {
	return d.feed.Subscribe(fn)
}

// Broadcast 主动推送一次当前会话。
func (d *Directory) Broadcast(ctx context.Context) { d.feed.Emit(d.CurrentUser(ctx)) }

func (d *Directory) Close() { d.unsub() }

// RegisterInput 注册参数。Phone 可选，给出时至少 7 位数字且不能与已有账号重复。
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone"`
}

// ProfileUpdate 只修改非 nil 的字段。
type ProfileUpdate struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Avatar  *string `json:"avatar"`
}

func (d *Directory) users(ctx context.Context, r kv.Reader) []model.Account {
	list, err := kv.GetJSON(ctx, r, d.usersKey, []model.Account{})
	if err != nil {
		d.log.Warn("read users failed, using empty list", zap.String("key", d.usersKey), zap.Error(err))
	}
	return list
}

func (d *Directory) session(ctx context.Context, r kv.Reader) *model.Profile {
	p, err := kv.GetJSON[*model.Profile](ctx, r, d.sessionKey, nil)
	if err != nil {
		d.log.Warn("read session failed, treating as logged out", zap.String("key", d.sessionKey), zap.Error(err))
	}
	return p
}

// Users 返回全部账号（含密码哈希），仅供内部管理使用。
func (d *Directory) Users(ctx context.Context) []model.Account {
	return d.users(ctx, d.store)
}

// Register 创建账号并登录。
func (d *Directory) Register(ctx context.Context, in RegisterInput) (model.Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := d.validator.Struct(in); err != nil {
		return model.Profile{}, err
	}
	phone := NormalizePhone(in.Phone)
	if in.Phone != "" && len(phone) < minPhoneDigits {
		return model.Profile{}, apperr.Validation("phone", "must contain at least 7 digits")
	}

	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return model.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	var created model.Account
	err = d.store.Update(ctx, func(tx kv.Txn) error {
		users := d.users(ctx, tx)
		if indexByEmail(users, in.Email) >= 0 {
			return apperr.ErrDuplicateEmail
		}
		if phone != "" && indexByPhone(users, phone) >= 0 {
			return apperr.Validation("phone", "phone already registered")
		}
		now := d.clock.Now()
		created = model.Account{
			ID:           nextID(users, now.UnixMilli()),
			Name:         in.Name,
			Email:        in.Email,
			PasswordHash: hash,
			Phone:        in.Phone,
			CreatedAt:    now,
		}
		if err := kv.PutJSON(ctx, tx, d.usersKey, append(users, created)); err != nil {
			return err
		}
		return kv.PutJSON(ctx, tx, d.sessionKey, created.Profile())
	})
	if err != nil {
		return model.Profile{}, err
	}
	d.log.Info("account registered", zap.Int64("user_id", created.ID))
	return created.Profile(), nil
}

// Login 邮箱不区分大小写；邮箱或密码不匹配一律返回 ErrInvalidCredentials。
func (d *Directory) Login(ctx context.Context, email, password string) (model.Profile, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return model.Profile{}, apperr.ErrInvalidCredentials
	}
	return d.login(ctx, password, func(users []model.Account) int { return indexByEmail(users, email) })
}

// LoginByPhone 按归一化后的手机号登录。
func (d *Directory) LoginByPhone(ctx context.Context, phone, password string) (model.Profile, error) {
	phone = NormalizePhone(phone)
	if phone == "" || password == "" {
		return model.Profile{}, apperr.ErrInvalidCredentials
	}
	return d.login(ctx, password, func(users []model.Account) int { return indexByPhone(users, phone) })
}

func (d *Directory) login(ctx context.Context, password string, find func([]model.Account) int) (model.Profile, error) {
	var p model.Profile
	err := d.store.Update(ctx, func(tx kv.Txn) error {
		users := d.users(ctx, tx)
		i := find(users)
		if i < 0 {
			return apperr.ErrInvalidCredentials
		}
		if err := d.hasher.Compare(users[i].PasswordHash, password); err != nil {
			return apperr.ErrInvalidCredentials
		}
		p = users[i].Profile()
		return kv.PutJSON(ctx, tx, d.sessionKey, p)
	})
	if err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// Logout 清除会话，未登录时也不会报错。
func (d *Directory) Logout(ctx context.Context) error {
	if err := d.store.Remove(ctx, d.sessionKey); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// CurrentUser 返回当前会话，未登录为 nil。
func (d *Directory) CurrentUser(ctx context.Context) *model.Profile {
	return d.session(ctx, d.store)
}

func (d *Directory) IsLoggedIn(ctx context.Context) bool {
	return d.CurrentUser(ctx) != nil
}

// UpdateProfile 合并资料并刷新会话。
func (d *Directory) UpdateProfile(ctx context.Context, upd ProfileUpdate) (model.Profile, error) {
	var p model.Profile
	err := d.store.Update(ctx, func(tx kv.Txn) error {
		users, i, err := d.sessionAccount(ctx, tx)
		if err != nil {
			return err
		}
		acc := users[i]
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return apperr.Validation("name", "is required")
			}
			acc.Name = name
		}
		if upd.Email != nil {
			email := normalizeEmail(*upd.Email)
			if err := d.validator.Struct(emailField{Email: email}); err != nil {
				return err
			}
			if j := indexByEmail(users, email); j >= 0 && j != i {
				return apperr.ErrDuplicateEmail
			}
			acc.Email = email
		}
		if upd.Phone != nil {
			raw := strings.TrimSpace(*upd.Phone)
			phone := NormalizePhone(raw)
			if raw != "" && len(phone) < minPhoneDigits {
				return apperr.Validation("phone", "must contain at least 7 digits")
			}
			if j := indexByPhone(users, phone); phone != "" && j >= 0 && j != i {
				return apperr.Validation("phone", "phone already registered")
			}
			acc.Phone = raw
		}
		if upd.Address != nil {
			acc.Address = strings.TrimSpace(*upd.Address)
		}
		if upd.Avatar != nil {
			acc.Avatar = strings.TrimSpace(*upd.Avatar)
		}
		users[i] = acc
		p = acc.Profile()
		if err := kv.PutJSON(ctx, tx, d.usersKey, users); err != nil {
			return err
		}
		return kv.PutJSON(ctx, tx, d.sessionKey, p)
	})
	if err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

type emailField struct {
	Email string `json:"email" validate:"required,email"`
}

// ChangePassword 校验旧密码后写入新密码哈希，会话保持不变。
func (d *Directory) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return d.store.Update(ctx, func(tx kv.Txn) error {
		users, i, err := d.sessionAccount(ctx, tx)
		if err != nil {
			return err
		}
		if err := d.hasher.Compare(users[i].PasswordHash, oldPassword); err != nil {
			return apperr.ErrWrongOldPassword
		}
		if len(newPassword) < MinPasswordLen {
			return apperr.Validation("newPassword", fmt.Sprintf("must be at least %d characters", MinPasswordLen))
		}
		hash, err := d.hasher.Hash(newPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		users[i].PasswordHash = hash
		return kv.PutJSON(ctx, tx, d.usersKey, users)
	})
}

// sessionAccount 找到会话对应的账号；未登录返回 ErrNotAuthenticated，账号已不存在返回 NotFound。
func (d *Directory) sessionAccount(ctx context.Context, tx kv.Txn) ([]model.Account, int, error) {
	s := d.session(ctx, tx)
	if s == nil {
		return nil, -1, apperr.ErrNotAuthenticated
	}
	users := d.users(ctx, tx)
	i := slices.IndexFunc(users, func(a model.Account) bool { return a.ID == s.ID })
	if i < 0 {
		return nil, -1, apperr.NotFound("account not found")
	}
	return users, i, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone 只保留数字。
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func indexByEmail(users []model.Account, email string) int {
	return slices.IndexFunc(users, func(a model.Account) bool { return strings.EqualFold(a.Email, email) })
}

func indexByPhone(users []model.Account, phone string) int {
	return slices.IndexFunc(users, func(a model.Account) bool {
		return a.Phone != "" && NormalizePhone(a.Phone) == phone
	})
}

// nextID 默认取创建时刻的毫秒时间戳，与已有 id 冲突时取最大 id + 1。
func nextID(users []model.Account, candidate int64) int64 {
	taken := false
	var maxID int64
	for _, u := range users {
		if u.ID == candidate {
			taken = true
		}
		maxID = max(maxID, u.ID)
	}
	if !taken {
		return candidate
	}
	return maxID + 1
}
