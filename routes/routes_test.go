package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vditaxi/clock"
	"vditaxi/hub"
	"vditaxi/models"
	"vditaxi/store"
)

type testServer struct {
	*httptest.Server
	clk *clock.FakeClock
	st  *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	// Tokens are checked against wall time, so the fake starts at now.
	clk := clock.Fake(time.Now())
	st := store.NewMemory()
	if err := store.Seed(context.Background(), st, clk.Now()); err != nil {
		t.Fatal(err)
	}
	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Stop)

	router, _ := NewRouter(Deps{
		Store:          st,
		Hub:            h,
		Clock:          clk,
		ConnectURL:     "/guacamole/#/client/%s",
		AllowedOrigins: []string{"*"},
	})
	srv := httptest.NewServer(Handler(router, []string{"*"}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, clk: clk, st: st}
}

func (s *testServer) do(t *testing.T, token, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	code, body := s.do(t, "", http.MethodPost, "/api/auth/login", models.LoginRequest{Username: username, Password: password})
	if code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, code, body)
	}
	var res models.LoginResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	return res.Token
}

func detail(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("error body %s: %v", body, err)
	}
	return e.Detail
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, "", http.MethodPost, "/api/auth/login", models.LoginRequest{Username: "anna", Password: "wrong"})
	if code != http.StatusUnauthorized || detail(t, body) == "" {
		t.Fatalf("bad password: %d %s", code, body)
	}

	token := s.login(t, "ANNA", "user123")
	code, body = s.do(t, token, http.MethodGet, "/api/auth/me", nil)
	if code != http.StatusOK {
		t.Fatalf("me: %d %s", code, body)
	}
	var u models.User
	json.Unmarshal(body, &u)
	if u.Username != "anna" || u.IsAdmin {
		t.Fatalf("me = %+v", u)
	}
	if strings.Contains(string(body), "password") {
		t.Fatal("password hash leaked")
	}

	if code, _ := s.do(t, "", http.MethodGet, "/api/slots", nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous slots: %d", code)
	}
}

func TestOccupyConflictAndRelease(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	code, body := s.do(t, anna, http.MethodPost, "/api/slots/ppx-1/occupy", nil)
	if code != http.StatusOK {
		t.Fatalf("occupy: %d %s", code, body)
	}
	var occ models.OccupyResult
	json.Unmarshal(body, &occ)
	if occ.SlotID != "ppx-1" || occ.SessionID == 0 || occ.ConnectURL == "" {
		t.Fatalf("occupy = %+v", occ)
	}

	code, body = s.do(t, admin, http.MethodPost, "/api/slots/ppx-1/occupy", nil)
	if code != http.StatusConflict || detail(t, body) != "slot already occupied by Anna" {
		t.Fatalf("second occupy: %d %s", code, body)
	}
	if code, _ := s.do(t, anna, http.MethodPost, "/api/slots/nope/occupy", nil); code != http.StatusNotFound {
		t.Fatalf("unknown slot: %d", code)
	}

	s.clk.Advance(5 * time.Minute)
	code, body = s.do(t, admin, http.MethodGet, "/api/slots", nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	var list []models.Slot
	json.Unmarshal(body, &list)
	if len(list) != 10 {
		t.Fatalf("slots = %d", len(list))
	}
	v, _ := models.FindSlot(list, "ppx-1")
	if v.Available || v.OccupantName != "Anna" || v.SessionMinutes == nil || *v.SessionMinutes != 5 {
		t.Fatalf("ppx-1 = %+v", v)
	}

	// Credentials are for the occupant only.
	if code, _ := s.do(t, admin, http.MethodGet, "/api/slots/ppx-1/credentials", nil); code != http.StatusForbidden {
		t.Fatalf("foreign credentials: %d", code)
	}
	if code, _ := s.do(t, anna, http.MethodGet, "/api/slots/ppx-1/credentials", nil); code != http.StatusOK {
		t.Fatalf("own credentials: %d", code)
	}

	if code, _ := s.do(t, admin, http.MethodPost, "/api/slots/ppx-1/release", nil); code != http.StatusNotFound {
		t.Fatalf("release by other: %d", code)
	}
	code, body = s.do(t, anna, http.MethodPost, "/api/slots/ppx-1/release", nil)
	if code != http.StatusOK {
		t.Fatalf("release: %d %s", code, body)
	}
	var rel models.ReleaseResult
	json.Unmarshal(body, &rel)
	if !rel.OK || rel.SessionID != occ.SessionID {
		t.Fatalf("release = %+v", rel)
	}
}

func TestForceReleaseIsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	s.do(t, admin, http.MethodPost, "/api/slots/gpt-1/occupy", nil)
	if code, _ := s.do(t, anna, http.MethodPost, "/api/slots/gpt-1/force-release", nil); code != http.StatusForbidden {
		t.Fatalf("user force-release: %d", code)
	}
	if code, _ := s.do(t, anna, http.MethodPost, "/api/slots/gpt-1/queue", nil); code != http.StatusOK {
		t.Fatalf("join queue: %d", code)
	}
	code, body := s.do(t, admin, http.MethodPost, "/api/slots/gpt-1/force-release", nil)
	if code != http.StatusOK {
		t.Fatalf("admin force-release: %d %s", code, body)
	}
	var rel models.ReleaseResult
	json.Unmarshal(body, &rel)
	if rel.NextInQueue != "Anna" {
		t.Fatalf("next in queue = %q", rel.NextInQueue)
	}
}

func TestQueueEndpoints(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	code, body := s.do(t, anna, http.MethodPost, "/api/slots/hf-1/queue", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("queue on free slot: %d %s", code, body)
	}

	s.do(t, admin, http.MethodPost, "/api/slots/hf-1/occupy", nil)
	code, body = s.do(t, anna, http.MethodPost, "/api/slots/hf-1/queue", nil)
	if code != http.StatusOK {
		t.Fatalf("join: %d %s", code, body)
	}
	var pos models.QueuePosition
	json.Unmarshal(body, &pos)
	if pos.Position != 1 || pos.TotalInQueue != 1 {
		t.Fatalf("pos = %+v", pos)
	}

	code, body = s.do(t, anna, http.MethodGet, "/api/slots/hf-1/queue", nil)
	var info models.QueueInfo
	json.Unmarshal(body, &info)
	if code != http.StatusOK || info.QueueSize != 1 {
		t.Fatalf("info: %d %+v", code, info)
	}

	if code, _ := s.do(t, anna, http.MethodDelete, "/api/slots/hf-1/queue", nil); code != http.StatusOK {
		t.Fatalf("leave: %d", code)
	}
	if code, _ := s.do(t, anna, http.MethodDelete, "/api/slots/hf-1/queue", nil); code != http.StatusNotFound {
		t.Fatalf("leave twice: %d", code)
	}
}

func TestBookingEndpoints(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	tomorrow := s.clk.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	yesterday := s.clk.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	tests := []struct {
		name  string
		token string
		req   models.BookingRequest
		want  int
	}{
		{"past date", anna, models.BookingRequest{SlotID: "ppx-1", Date: yesterday, StartTime: "10:00"}, http.StatusBadRequest},
		{"bad time", anna, models.BookingRequest{SlotID: "ppx-1", Date: tomorrow, StartTime: "25:99"}, http.StatusBadRequest},
		{"unknown slot", anna, models.BookingRequest{SlotID: "nope", Date: tomorrow, StartTime: "10:00"}, http.StatusNotFound},
		{"ok", anna, models.BookingRequest{SlotID: "ppx-1", Date: tomorrow, StartTime: "10:00"}, http.StatusCreated},
		{"overlap", admin, models.BookingRequest{SlotID: "ppx-1", Date: tomorrow, StartTime: "10:30", DurationMin: 30}, http.StatusConflict},
		{"adjacent", admin, models.BookingRequest{SlotID: "ppx-1", Date: tomorrow, StartTime: "11:00"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, tt.token, http.MethodPost, "/api/bookings", tt.req)
			if code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", code, tt.want, body)
			}
		})
	}

	code, body := s.do(t, anna, http.MethodGet, "/api/bookings", nil)
	var list []models.Booking
	json.Unmarshal(body, &list)
	if code != http.StatusOK || len(list) != 1 || list[0].DurationMin != models.DefaultBookingMinutes {
		t.Fatalf("list: %d %+v", code, list)
	}

	path := "/api/bookings/" + jsonNumber(list[0].ID)
	if code, _ := s.do(t, admin, http.MethodDelete, path, nil); code != http.StatusNotFound {
		t.Fatalf("cancel foreign booking: %d", code)
	}
	if code, _ := s.do(t, anna, http.MethodDelete, path, nil); code != http.StatusOK {
		t.Fatalf("cancel: %d", code)
	}
	_, body = s.do(t, anna, http.MethodGet, "/api/bookings", nil)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("after cancel = %s", body)
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestTemplateLaunch(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	code, _ := s.do(t, anna, http.MethodPost, "/api/templates", models.TemplateRequest{Name: "Empty"})
	if code != http.StatusBadRequest {
		t.Fatalf("empty template: %d", code)
	}
	code, body := s.do(t, anna, http.MethodPost, "/api/templates", models.TemplateRequest{Name: "Pair", SlotIDs: []string{"ppx-2", "nbp", "ghost"}})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}
	var tpl models.Template
	json.Unmarshal(body, &tpl)
	if tpl.Icon == "" {
		t.Fatal("default icon not applied")
	}

	s.do(t, admin, http.MethodPost, "/api/slots/nbp/occupy", nil)

	code, body = s.do(t, anna, http.MethodPost, "/api/templates/"+jsonNumber(tpl.ID)+"/launch", nil)
	if code != http.StatusOK {
		t.Fatalf("launch: %d %s", code, body)
	}
	var res models.LaunchResult
	json.Unmarshal(body, &res)
	if len(res.Sessions) != 2 {
		t.Fatalf("sessions = %+v", res.Sessions)
	}
	if res.Sessions[0].Status != models.LaunchOK || res.Sessions[1].Status != models.LaunchOccupied || res.Sessions[1].Occupant != "Admin" {
		t.Fatalf("sessions = %+v", res.Sessions)
	}

	got, _ := s.st.GetTemplate(context.Background(), tpl.ID)
	if got.UsageCount != 1 {
		t.Fatalf("usage = %d", got.UsageCount)
	}

	if code, _ := s.do(t, anna, http.MethodDelete, "/api/templates/"+jsonNumber(tpl.ID), nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := s.do(t, anna, http.MethodDelete, "/api/templates/"+jsonNumber(tpl.ID), nil); code != http.StatusNotFound {
		t.Fatalf("delete twice: %d", code)
	}
}

func TestProfileAndHistory(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	favs := []string{"ppx-1", "gpt-1", "ppx-1"}
	code, body := s.do(t, anna, http.MethodPut, "/api/profile", models.ProfileUpdate{Favorites: &favs})
	if code != http.StatusOK {
		t.Fatalf("put profile: %d %s", code, body)
	}
	var p models.Profile
	json.Unmarshal(body, &p)
	if len(p.Favorites) != 2 || p.TelegramID != "@anna" {
		t.Fatalf("profile = %+v", p)
	}

	_, body = s.do(t, anna, http.MethodPost, "/api/slots/ppx-1/occupy", nil)
	var occ models.OccupyResult
	json.Unmarshal(body, &occ)
	s.clk.Advance(12 * time.Minute)
	s.do(t, anna, http.MethodPost, "/api/slots/ppx-1/release", nil)

	code, body = s.do(t, anna, http.MethodGet, "/api/profile/sessions?limit=5", nil)
	var hist []models.SessionSummary
	json.Unmarshal(body, &hist)
	if code != http.StatusOK || len(hist) != 1 || hist[0].DurationMin != 12 || hist[0].EndReason != models.EndManual {
		t.Fatalf("history: %d %+v", code, hist)
	}
	if code, _ := s.do(t, anna, http.MethodGet, "/api/profile/sessions?limit=500", nil); code != http.StatusBadRequest {
		t.Fatalf("limit 500: %d", code)
	}

	summary := "/api/sessions/" + jsonNumber(occ.SessionID) + "/summary"
	if code, _ := s.do(t, anna, http.MethodGet, summary, nil); code != http.StatusOK {
		t.Fatalf("own summary: %d", code)
	}
	if code, _ := s.do(t, admin, http.MethodGet, summary, nil); code != http.StatusOK {
		t.Fatalf("admin summary: %d", code)
	}
	if code, _ := s.do(t, anna, http.MethodGet, "/api/sessions/9999/summary", nil); code != http.StatusNotFound {
		t.Fatalf("missing summary: %d", code)
	}
}

func TestAdminDisableEndsSession(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	if code, _ := s.do(t, anna, http.MethodGet, "/api/admin/slots", nil); code != http.StatusForbidden {
		t.Fatalf("user admin list: %d", code)
	}
	s.do(t, anna, http.MethodPost, "/api/slots/lov-1/occupy", nil)

	off := false
	code, body := s.do(t, admin, http.MethodPut, "/api/admin/slots/lov-1", map[string]*bool{"is_active": &off})
	if code != http.StatusOK {
		t.Fatalf("disable: %d %s", code, body)
	}
	if _, err := s.st.ActiveSession(context.Background(), "lov-1"); err == nil {
		t.Fatal("session survived disabling")
	}

	_, body = s.do(t, anna, http.MethodGet, "/api/slots", nil)
	var list []models.Slot
	json.Unmarshal(body, &list)
	if _, ok := models.FindSlot(list, "lov-1"); ok {
		t.Fatal("disabled slot listed")
	}

	code, _ = s.do(t, admin, http.MethodPost, "/api/admin/slots", models.SlotRecord{ID: "lov-1", ServiceName: "dup"})
	if code != http.StatusConflict {
		t.Fatalf("duplicate create: %d", code)
	}
	code, _ = s.do(t, admin, http.MethodPost, "/api/admin/slots", models.SlotRecord{ID: "new-1", ServiceName: "New"})
	if code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
}

func TestAdminUsageStats(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")
	admin := s.login(t, "admin", "admin123")

	for _, path := range []string{"/api/admin/users", "/api/admin/stats"} {
		if code, _ := s.do(t, anna, http.MethodGet, path, nil); code != http.StatusForbidden {
			t.Fatalf("user %s: %d", path, code)
		}
	}

	s.do(t, anna, http.MethodPost, "/api/slots/ppx-1/occupy", nil)
	s.clk.Advance(6 * 24 * time.Hour)
	s.do(t, anna, http.MethodPost, "/api/slots/ppx-1/release", nil)
	s.do(t, anna, http.MethodPost, "/api/slots/nbp/occupy", nil)
	s.clk.Advance(30 * time.Minute)

	code, body := s.do(t, admin, http.MethodGet, "/api/admin/users", nil)
	if code != http.StatusOK {
		t.Fatalf("users: %d %s", code, body)
	}
	var users []models.UserUsage
	if err := json.Unmarshal(body, &users); err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]models.UserUsage)
	for _, u := range users {
		byName[u.Username] = u
	}
	if got := byName["anna"]; got.SessionsWeek != 2 || got.HoursWeek != 144.5 {
		t.Fatalf("anna = %+v", got)
	}
	if got := byName["admin"]; got.SessionsWeek != 0 || got.HoursWeek != 0 {
		t.Fatalf("admin = %+v", got)
	}

	code, body = s.do(t, admin, http.MethodGet, "/api/admin/stats", nil)
	if code != http.StatusOK {
		t.Fatalf("stats: %d %s", code, body)
	}
	var stats []models.SlotUsage
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats) != 10 {
		t.Fatalf("stats rows = %d", len(stats))
	}
	bySlot := make(map[string]models.SlotUsage)
	for _, st := range stats {
		bySlot[st.SlotID] = st
	}
	if got := bySlot["ppx-1"]; got.Pct != 86 || got.Recommendation == "" {
		t.Fatalf("ppx-1 = %+v", got)
	}
	if got := bySlot["nbp"]; got.Pct != 0 || got.Recommendation != "" {
		t.Fatalf("nbp = %+v", got)
	}
}

func TestWebSocketSeesOccupy(t *testing.T) {
	s := newTestServer(t)
	anna := s.login(t, "anna", "user123")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/api/ws/slots", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The pong proves the client is registered before the occupy.
	conn.WriteMessage(websocket.TextMessage, []byte("ping"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, msg, err := conn.ReadMessage(); err != nil || string(msg) != "pong" {
		t.Fatalf("pong: %q %v", msg, err)
	}

	s.do(t, anna, http.MethodPost, "/api/slots/ppx-3/occupy", nil)

	var ev models.SlotEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Event != models.EventSlotOccupied || ev.SlotID != "ppx-3" || ev.OccupantName != "Anna" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}
}
