package bitget

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(serverURL string) *Client {
	return NewClient(
		Credentials{APIKey: "key", APISecret: "secret", Passphrase: "pass"},
		WithBaseURL(serverURL),
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
		WithRateLimit(10000),
		WithClock(func() time.Time { return time.UnixMilli(1724800000000) }),
	)
}

func TestClientSign(t *testing.T) {
	c := testClient("http://unused")

	// Known-answer check so a signing regression is caught immediately:
	// base64(hmac_sha256("secret", "1724800000000GET/api/v2/mix/order/fills?limit=5"))
	got := c.sign("1724800000000", "GET", "/api/v2/mix/order/fills?limit=5", "")
	want := "E+ZuYc5QEMarHy6TouXbHM61l5iYVFS1hqWGqUuAqm0="
	if got != want {
		t.Errorf("sign = %s, want %s", got, want)
	}
}

func TestListFills_SignedHeadersAndPaging(t *testing.T) {
	var gotHeaders http.Header
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		gotHeaders = r.Header.Clone()

		if r.URL.Query().Get("productType") != ProductTypeUSDTFutures {
			t.Errorf("missing productType in query: %s", r.URL.RawQuery)
		}

		switch r.URL.Query().Get("idLessThan") {
		case "":
			fmt.Fprint(w, `{"code":"00000","msg":"success","data":{"fillList":[
				{"tradeId":"t2","orderId":"o2","symbol":"BTCUSDT","side":"sell","price":"65100","baseVolume":"0.1","cTime":"1724800002000","tradeSide":"close","feeDetail":[{"totalFee":"-0.2"}]},
				{"tradeId":"t3","orderId":"o3","symbol":"BTCUSDT","side":"buy","price":"65200","baseVolume":"0.1","cTime":"1724800003000","tradeSide":"open","feeDetail":[]}
			],"endId":"t2"}}`)
		case "t2":
			fmt.Fprint(w, `{"code":"00000","msg":"success","data":{"fillList":[
				{"tradeId":"t1","orderId":"o1","symbol":"BTCUSDT","side":"buy","price":"65000","baseVolume":"0.2","cTime":"1724800001000","tradeSide":"open","feeDetail":[{"totalFee":"-0.4"}]}
			],"endId":""}}`)
		default:
			t.Errorf("unexpected idLessThan %q", r.URL.Query().Get("idLessThan"))
		}
	}))
	defer server.Close()

	c := testClient(server.URL)
	ctx := context.Background()

	page1, endID, err := c.ListFills(ctx, FillsQuery{StartMs: 0, EndMs: 1724800010000, Limit: 2})
	if err != nil {
		t.Fatalf("ListFills page 1 failed: %v", err)
	}
	if len(page1) != 2 || endID != "t2" {
		t.Fatalf("page 1: %d fills, endID %q", len(page1), endID)
	}
	// Pages come back sorted by execution time regardless of API order.
	if page1[0].FillID != "t2" || page1[1].FillID != "t3" {
		t.Errorf("page 1 order: %s, %s", page1[0].FillID, page1[1].FillID)
	}

	page2, endID, err := c.ListFills(ctx, FillsQuery{StartMs: 0, EndMs: 1724800010000, Limit: 2, IDLessThan: "t2"})
	if err != nil {
		t.Fatalf("ListFills page 2 failed: %v", err)
	}
	if len(page2) != 1 || endID != "" {
		t.Fatalf("page 2: %d fills, endID %q", len(page2), endID)
	}

	if gotHeaders.Get("ACCESS-KEY") != "key" {
		t.Errorf("ACCESS-KEY = %q", gotHeaders.Get("ACCESS-KEY"))
	}
	if gotHeaders.Get("ACCESS-TIMESTAMP") != "1724800000000" {
		t.Errorf("ACCESS-TIMESTAMP = %q", gotHeaders.Get("ACCESS-TIMESTAMP"))
	}
	if gotHeaders.Get("ACCESS-PASSPHRASE") != "pass" {
		t.Errorf("ACCESS-PASSPHRASE = %q", gotHeaders.Get("ACCESS-PASSPHRASE"))
	}
	if gotHeaders.Get("ACCESS-SIGN") == "" {
		t.Error("missing ACCESS-SIGN header")
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":{"fillList":[],"endId":""}}`)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, _, err := c.ListFills(context.Background(), FillsQuery{StartMs: 0, EndMs: 1000, Limit: 10})
	if err != nil {
		t.Fatalf("ListFills failed after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestClient_APIErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, `{"code":"40012","msg":"apikey/password is incorrect","data":null}`)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, _, err := c.ListFills(context.Background(), FillsQuery{StartMs: 0, EndMs: 1000})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, exchange rejections must not retry", attempts)
	}
}

func TestGetOrderPositionSide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("orderId") != "o1" {
			t.Errorf("orderId = %q", r.URL.Query().Get("orderId"))
		}
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":{"orderId":"o1","symbol":"BTCUSDT","posSide":"long"}}`)
	}))
	defer server.Close()

	c := testClient(server.URL)
	side, err := c.GetOrderPositionSide(context.Background(), "BTCUSDT", "o1")
	if err != nil {
		t.Fatalf("GetOrderPositionSide failed: %v", err)
	}
	if side.String() != "long" {
		t.Errorf("side = %s, want long", side)
	}
}

func TestGetAccountSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":[
			{"marginCoin":"BTC","accountEquity":"0.01","available":"0.01"},
			{"marginCoin":"USDT","accountEquity":"5000.5","available":"4200"}
		]}`)
	}))
	defer server.Close()

	c := testClient(server.URL)
	snap, err := c.GetAccountSnapshot(context.Background())
	if err != nil {
		t.Fatalf("GetAccountSnapshot failed: %v", err)
	}
	if snap.Equity != 5000.5 || snap.Available != 4200 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.MarginCoin != "USDT" {
		t.Errorf("MarginCoin = %s", snap.MarginCoin)
	}
}
