package domain

import (
	"testing"
	"time"
)

func TestViewer_CanSee(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	before := start.Add(-time.Minute)
	after := start.Add(time.Minute)

	viewer := Viewer{UserID: "u-1", Callsign: "NIGHTHAWK", SessionStartedAt: start}
	admin := Viewer{UserID: "u-9", Callsign: "WARDEN", IsAdmin: true, SessionStartedAt: start}

	tests := []struct {
		name  string
		msg   Message
		user  bool
		admin bool
	}{
		{"broadcast in session", Message{Recipient: RecipientAll, UserID: "u-2", SentAt: after}, true, true},
		{"broadcast before session", Message{Recipient: RecipientAll, UserID: "u-2", SentAt: before}, false, true},
		{"sent at session start", Message{Recipient: RecipientAll, UserID: "u-2", SentAt: start}, true, true},
		{"directed to viewer", Message{Recipient: "NIGHTHAWK", RecipientUserID: "u-1", UserID: "u-2", SentAt: after}, true, true},
		{"directed to someone else", Message{Recipient: "KESTREL", RecipientUserID: "u-3", UserID: "u-2", SentAt: after}, false, true},
		{"own directed message", Message{Recipient: "KESTREL", RecipientUserID: "u-3", UserID: "u-1", SentAt: after}, true, true},
		{"callsign reused by another id", Message{Recipient: "NIGHTHAWK", RecipientUserID: "u-7", UserID: "u-2", SentAt: after}, false, true},
		{"legacy record by callsign", Message{Recipient: "NIGHTHAWK", UserID: "u-2", SentAt: after}, true, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.msg
			if got := viewer.CanSee(&m); got != tc.user {
				t.Errorf("operative: expected %v, got %v", tc.user, got)
			}
			if got := admin.CanSee(&m); got != tc.admin {
				t.Errorf("admin: expected %v, got %v", tc.admin, got)
			}
		})
	}
}

func TestParseCallsign(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: " nighthawk ", want: "NIGHTHAWK"},
		{in: "red-5.alpha_2", want: "RED-5.ALPHA_2"},
		{in: "all", wantErr: true},
		{in: "x", wantErr: true},
		{in: "has space", wantErr: true},
		{in: "ABCDEFGHIJKLMNOPQRSTUVWXY", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseCallsign(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: expected %q, got %q (%v)", tc.in, tc.want, got, err)
		}
	}
}

func TestSessionRequest_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	approvedAt := now.Add(-20 * time.Minute)

	pendingOld := SessionRequest{Status: RequestPending, CreatedAt: now.Add(-16 * time.Minute)}
	pendingNew := SessionRequest{Status: RequestPending, CreatedAt: now.Add(-time.Minute)}
	approvedStale := SessionRequest{Status: RequestApproved, CreatedAt: approvedAt, ResolvedAt: &approvedAt}
	confirmed := SessionRequest{Status: RequestApproved, ResolvedAt: &approvedAt, ConfirmedAt: &now}

	if !pendingOld.Expired(now, 15*time.Minute) {
		t.Error("old pending request should expire")
	}
	if pendingNew.Expired(now, 15*time.Minute) {
		t.Error("fresh pending request should not expire")
	}
	if !approvedStale.Expired(now, 15*time.Minute) {
		t.Error("unconfirmed approval should expire")
	}
	if confirmed.Expired(now, 15*time.Minute) {
		t.Error("confirmed request must never expire")
	}
}
