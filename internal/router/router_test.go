package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"

	mem "pet-diary/internal/adapters/storage/memory"
	"pet-diary/internal/middleware"
	"pet-diary/internal/realtime"
	"pet-diary/internal/router"
)

type user struct{ id, email string }

var (
	alice = user{"A", "a@example.com"}
	bob   = user{"B", "b@example.com"}
)

func TestHTTP_EndToEnd_OwnershipScenario(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	// 1) A crea la mascota y queda como owner
	petID := createPet(t, ts.URL, alice, map[string]any{"name": "Milo", "species": "dog"})

	// 2) A invita a B como editor; B ve la invitación y la acepta
	bobMember := invite(t, ts.URL, alice, petID, bob.email, "editor")
	{
		st, body := doReq(t, ts.URL, "GET", "/me/invitations", bob, nil)
		if st != http.StatusOK || !strings.Contains(string(body), bobMember) {
			t.Fatalf("expected pending invitation, got %d body=%s", st, body)
		}
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/pets/"+petID+"/members/"+bobMember+"/accept", bob, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 accept, got %d body=%s", st, body)
		}
	}
	// otra invitación al mismo email se rechaza
	{
		st, _ := doReq(t, ts.URL, "POST", "/pets/"+petID+"/members", alice, map[string]any{"email": bob.email, "role": "viewer"})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 duplicate invite, got %d", st)
		}
	}

	members := listMembers(t, ts.URL, alice, petID)
	aliceMember := members[alice.id].ID

	// 3) B (editor) no puede sacar a A
	{
		st, _ := doReq(t, ts.URL, "DELETE", "/pets/"+petID+"/members/"+aliceMember, bob, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 remove owner by editor, got %d", st)
		}
	}
	// A tampoco puede bajarse a sí misma siendo la única owner
	{
		st, _ := doReq(t, ts.URL, "PATCH", "/pets/"+petID+"/members/"+aliceMember, alice, map[string]any{"role": "editor"})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 demote sole owner, got %d", st)
		}
	}

	// 4) A transfiere a B
	{
		st, body := doReq(t, ts.URL, "POST", "/pets/"+petID+"/members/"+bobMember+"/transfer", alice, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 transfer, got %d body=%s", st, body)
		}
	}
	members = listMembers(t, ts.URL, alice, petID)
	if members[bob.id].Role != "owner" || members[alice.id].Role != "editor" {
		t.Fatalf("unexpected roles after transfer: %+v", members)
	}
	{
		st, body := doReq(t, ts.URL, "GET", "/pets/"+petID, bob, nil)
		if st != http.StatusOK || !strings.Contains(string(body), `"ownerId":"B"`) {
			t.Fatalf("pet owner must follow the transfer: %d %s", st, body)
		}
	}

	// 5) A se va; queda B como única owner
	{
		st, body := doReq(t, ts.URL, "POST", "/pets/"+petID+"/members/leave", alice, nil)
		if st != http.StatusNoContent {
			t.Fatalf("expected 204 leave, got %d body=%s", st, body)
		}
	}
	members = listMembers(t, ts.URL, bob, petID)
	if len(members) != 1 || members[bob.id].Role != "owner" {
		t.Fatalf("expected only B as owner, got %+v", members)
	}

	// 6) A perdió el acceso
	{
		st, _ := doReq(t, ts.URL, "GET", "/pets/"+petID+"/entries", alice, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 after leaving, got %d", st)
		}
	}
}

func TestHTTP_EntriesAndWeights(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	petID := createPet(t, ts.URL, alice, map[string]any{"name": "Milo", "species": "cat"})

	{
		st, body := doReq(t, ts.URL, "POST", "/pets/"+petID+"/entries", alice, map[string]any{
			"type": "diary", "date": "2025-01-01", "tags": []string{},
		})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 without tags, got %d body=%s", st, body)
		}
	}
	for _, d := range []string{"2025-01-01", "2025-01-03", "2025-01-02"} {
		st, body := doReq(t, ts.URL, "POST", "/pets/"+petID+"/entries", alice, map[string]any{
			"type": "diary", "date": d, "tags": []string{"walk"}, "title": "paseo",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 entry, got %d body=%s", st, body)
		}
	}

	st, body := doReq(t, ts.URL, "GET", "/pets/"+petID+"/entries", alice, nil)
	if st != http.StatusOK {
		t.Fatalf("list entries: %d %s", st, body)
	}
	var page struct {
		Items []struct {
			Date string `json:"date"`
		} `json:"items"`
		HasMore bool `json:"hasMore"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 3 || page.Items[0].Date != "2025-01-03" || page.HasMore {
		t.Fatalf("unexpected page: %s", body)
	}

	for _, v := range []float64{4.1, 4.3} {
		st, body := doReq(t, ts.URL, "POST", "/pets/"+petID+"/weights", alice, map[string]any{"value": v, "unit": "kg", "date": "2025-02-01"})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 weight, got %d body=%s", st, body)
		}
	}
	st, body = doReq(t, ts.URL, "GET", "/pets/"+petID+"/weights", alice, nil)
	if st != http.StatusOK || !strings.Contains(string(body), `"value":4.3`) {
		t.Fatalf("list weights: %d %s", st, body)
	}
	{
		st, _ := doReq(t, ts.URL, "POST", "/pets/"+petID+"/weights", alice, map[string]any{"value": 0, "date": "2025-02-01"})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 for zero weight, got %d", st)
		}
	}
}

func TestHTTP_Unauthenticated(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	st, _ := doReq(t, ts.URL, "GET", "/pets", user{}, nil)
	if st != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "GET", "/health", user{}, nil)
	if st != http.StatusOK {
		t.Fatalf("health: %d", st)
	}
}

func TestHTTP_MembersStream(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()
	hub := realtime.NewHub(bus, nil)
	defer hub.Shutdown()

	ts := httptest.NewServer(router.NewRouter(router.Options{
		Store:   realtime.NewChangeFeed(mem.NewStore(), bus, nil),
		Streams: realtime.NewStreams(hub, realtime.NewBridge(nil, nil)),
	}))
	defer ts.Close()

	petID := createPet(t, ts.URL, alice, map[string]any{"name": "Milo", "species": "dog"})

	header := http.Header{}
	header.Set(middleware.HeaderDebugUserID, alice.id)
	header.Set(middleware.HeaderDebugUserEmail, alice.email)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/pets/" + petID + "/members/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if n := readMembers(t, conn); n != 1 {
		t.Fatalf("initial snapshot: %d members", n)
	}
	invite(t, ts.URL, alice, petID, bob.email, "viewer")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if readMembers(t, conn) == 2 {
			return
		}
	}
	t.Fatalf("invite never reached the stream")
}

func readMembers(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			Members      []json.RawMessage `json:"members"`
			Capabilities struct {
				CanManageMembers bool `json:"canManageMembers"`
			} `json:"capabilities"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "snapshot" || !msg.Data.Capabilities.CanManageMembers {
		t.Fatalf("unexpected message: %+v", msg)
	}
	return len(msg.Data.Members)
}

type memberView struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func listMembers(t *testing.T, baseURL string, u user, petID string) map[string]memberView {
	t.Helper()
	st, body := doReq(t, baseURL, "GET", "/pets/"+petID+"/members", u, nil)
	if st != http.StatusOK {
		t.Fatalf("list members: %d body=%s", st, body)
	}
	var items []struct {
		memberView
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatalf("decode members: %v", err)
	}
	out := map[string]memberView{}
	for _, m := range items {
		out[m.UserID] = m.memberView
	}
	return out
}

func createPet(t *testing.T, baseURL string, u user, payload map[string]any) string {
	t.Helper()
	st, body := doReq(t, baseURL, "POST", "/pets", u, payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create pet, got %d body=%s", st, body)
	}
	return idOf(t, body)
}

func invite(t *testing.T, baseURL string, owner user, petID, email, role string) string {
	t.Helper()
	st, body := doReq(t, baseURL, "POST", "/pets/"+petID+"/members", owner, map[string]any{"email": email, "role": role})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 invite, got %d body=%s", st, body)
	}
	return idOf(t, body)
}

func idOf(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("missing id body=%s", body)
	}
	return resp.ID
}

func doReq(t *testing.T, baseURL, method, path string, u user, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u.id != "" {
		req.Header.Set(middleware.HeaderDebugUserID, u.id)
		req.Header.Set(middleware.HeaderDebugUserEmail, u.email)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
