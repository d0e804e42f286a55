package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

// CartReport 是 cart 场景的结果。
type CartReport struct {
	Results  []Result
	Stock    int
	FinalQty int
}

// runCart 清空购物车后并发加购同一商品，最后读取购物车里的数量。
func runCart(ctx context.Context, client *http.Client, baseURL, slug string, n, concurrency int) (CartReport, error) {
	var detail struct {
		Data struct {
			Product struct {
				ID    int64 `json:"id"`
				Stock int   `json:"stock"`
			} `json:"product"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, baseURL+"/api/products/"+slug, &detail); err != nil {
		return CartReport{}, fmt.Errorf("load product: %w", err)
	}
	if res := send(ctx, client, http.MethodDelete, baseURL+"/api/cart", nil); res.Err != nil || res.Status >= 300 {
		return CartReport{}, fmt.Errorf("clear cart: status=%d err=%v", res.Status, res.Err)
	}

	body := map[string]any{"id": detail.Data.Product.ID, "qty": 1}
	results := fanOut(n, concurrency, func(int) Result {
		return send(ctx, client, http.MethodPost, baseURL+"/api/cart/items", body)
	})

	var cart struct {
		Data struct {
			Items []struct {
				ID  int64 `json:"id"`
				Qty int   `json:"qty"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, baseURL+"/api/cart", &cart); err != nil {
		return CartReport{}, fmt.Errorf("load cart: %w", err)
	}
	rep := CartReport{Results: results, Stock: detail.Data.Product.Stock}
	for _, it := range cart.Data.Items {
		if it.ID == detail.Data.Product.ID {
			rep.FinalQty = it.Qty
		}
	}
	return rep, nil
}

// runLogin 用错误密码并发登录同一邮箱。
func runLogin(ctx context.Context, client *http.Client, baseURL, email string, n, concurrency int) []Result {
	body := map[string]string{"email": email, "password": "definitely-wrong"}
	return fanOut(n, concurrency, func(int) Result {
		return send(ctx, client, http.MethodPost, baseURL+"/api/auth/login", body)
	})
}

// fanOut 以最多 concurrency 个并发执行 n 次 fn。
func fanOut(n, concurrency int, fn func(i int) Result) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := range n {
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			results[i] = fn(i)
		})
	}
	wg.Wait()
	return results
}

func send(ctx context.Context, client *http.Client, method, url string, body any) Result {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{Err: err}
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return Result{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	res := send(ctx, client, http.MethodGet, url, nil)
	if res.Err != nil {
		return res.Err
	}
	if res.Status >= 300 {
		return fmt.Errorf("status=%d body=%s", res.Status, res.Body)
	}
	return json.Unmarshal([]byte(res.Body), out)
}

// summarize 统计各状态码出现次数，网络错误记为 0。
func summarize(results []Result) map[int]int {
	count := map[int]int{}
	for _, r := range results {
		if r.Err != nil {
			count[0]++
			continue
		}
		count[r.Status]++
	}
	return count
}

// printSummary 聚合输出不同状态码分布。
func printSummary(w io.Writer, name string, results []Result) {
	count := summarize(results)
	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	fmt.Fprintf(w, "[%s] http status summary:\n", name)
	for _, code := range codes {
		if code == 0 {
			fmt.Fprintf(w, "  errors -> %d\n", count[code])
			continue
		}
		fmt.Fprintf(w, "  %d -> %d\n", code, count[code])
	}
}
