package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func (e *testEnv) get(t *testing.T, path, token string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestIssueTokenEndpoint(t *testing.T) {
	env := startTestServer(t, nil)

	post := func(body string) *http.Response {
		resp, err := env.ts.Client().Post(env.ts.URL+"/api/staff/token", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("post token: %v", err)
		}
		return resp
	}

	resp := post(fmt.Sprintf(`{"username":%q,"password":"wrong"}`, testOperator))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = post(`{"username":""}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = post(fmt.Sprintf(`{"username":%q,"password":%q}`, testOperator, testPassword))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := env.auth.ValidateToken(out.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Username != testOperator || !claims.IsStaff {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestStaffRoutesRequireStaffToken(t *testing.T) {
	env := startTestServer(t, nil)

	if resp, _ := env.get(t, "/api/staff/rooms/summary", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp, _ := env.get(t, "/api/staff/rooms/summary", "garbage"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
	if resp, _ := env.get(t, "/api/staff/rooms/summary", env.token(t, "bob", false)); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-staff token, got %d", resp.StatusCode)
	}
}

func TestRoomsSummary(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := context.Background()

	waiting, _ := env.store.CreateWaiting(ctx, "", "a")
	active, _ := env.store.CreateWaiting(ctx, "", "b")
	if _, err := env.store.Claim(ctx, active.Token, "c"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	closed, _ := env.store.CreateWaiting(ctx, "", "d")
	if _, err := env.store.Deactivate(ctx, closed.Token); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	resp, body := env.get(t, "/api/staff/rooms/summary", env.token(t, testOperator, true))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var out SummaryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Counts != (CountsResponse{Waiting: 1, Active: 1, Closed: 1, Total: 3}) {
		t.Fatalf("unexpected counts: %+v", out.Counts)
	}
	if len(out.WaitingRooms) != 1 || out.WaitingRooms[0].Token != waiting.Token || out.WaitingRooms[0].ParticipantB != nil {
		t.Fatalf("unexpected waiting rooms: %+v", out.WaitingRooms)
	}
	if len(out.ActiveRooms) != 1 || out.ActiveRooms[0].Token != active.Token || out.ActiveRooms[0].Status != "active" {
		t.Fatalf("unexpected active rooms: %+v", out.ActiveRooms)
	}
}

func TestRoomMessagesPagination(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := context.Background()
	token := env.token(t, testOperator, true)

	room, _ := env.store.CreateWaiting(ctx, "", "a")
	for i := 1; i <= 5; i++ {
		if _, err := env.store.AppendMessage(ctx, room.Token, "a", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	resp, body := env.get(t, "/api/staff/rooms/"+room.Token+"/messages?page=2&page_size=2", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out MessagesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 5 || out.TotalPages != 3 || out.Page != 2 || out.PageSize != 2 {
		t.Fatalf("unexpected paging: %+v", out)
	}
	if len(out.Messages) != 2 || out.Messages[0].Content != "m3" || out.Messages[1].Content != "m4" {
		t.Fatalf("unexpected page: %+v", out.Messages)
	}

	if resp, _ := env.get(t, "/api/staff/rooms/missing/messages", token); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp, _ := env.get(t, "/api/staff/rooms/"+room.Token+"/messages?page=0", token); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
