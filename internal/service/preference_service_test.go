package service

import (
	"errors"
	"testing"

	"alertd/internal/models"
	"alertd/pkg/crypto"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func validPreference() *models.NotificationPreference {
	return &models.NotificationPreference{
		UserID: 7,
		Channels: map[string]models.ChannelSetting{
			models.ChannelTelegram: {Enabled: true, Address: "123456", Credential: "bot-token-plaintext"},
		},
		Timezone: "Asia/Kolkata",
		Format:   models.FormatPlain,
	}
}

func TestPreferenceServiceUpdateEncryptsCredentials(t *testing.T) {
	repo := newMockPrefRepo()
	svc := NewPreferenceService(repo, testKey)

	if err := svc.Update(validPreference()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := repo.prefs[7].Channels[models.ChannelTelegram].Credential
	if stored == "" || stored == "bot-token-plaintext" {
		t.Fatal("credential must be stored encrypted")
	}

	decrypted, err := crypto.Decrypt(stored, testKey)
	if err != nil {
		t.Fatalf("stored credential must decrypt: %v", err)
	}
	if decrypted != "bot-token-plaintext" {
		t.Errorf("round trip mismatch: %q", decrypted)
	}
}

func TestPreferenceServiceUpdateKeepsPriorCredential(t *testing.T) {
	encrypted, err := crypto.Encrypt("old-secret", testKey)
	if err != nil {
		t.Fatal(err)
	}

	existing := validPreference()
	existing.Channels[models.ChannelTelegram] = models.ChannelSetting{
		Enabled: true, Address: "123456", Credential: encrypted,
	}

	repo := newMockPrefRepo(existing)
	svc := NewPreferenceService(repo, testKey)

	// Пустой credential в запросе: прежний сохраняется
	update := validPreference()
	update.Channels[models.ChannelTelegram] = models.ChannelSetting{Enabled: true, Address: "654321"}

	if err := svc.Update(update); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.prefs[7].Channels[models.ChannelTelegram].Credential; got != encrypted {
		t.Error("empty credential in request must keep the stored one")
	}
}

func TestPreferenceServiceGetMasksSecrets(t *testing.T) {
	existing := validPreference()
	existing.APITokenHash = "$2a$10$hash"

	svc := NewPreferenceService(newMockPrefRepo(existing), testKey)

	pref, err := svc.Get(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pref.Channels[models.ChannelTelegram].Credential != "" {
		t.Error("credential must be masked")
	}
	if pref.APITokenHash != "" {
		t.Error("token hash must be masked")
	}
}

func TestPreferenceServiceValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *models.NotificationPreference)
		wantErr error
	}{
		{"неизвестный канал", func(p *models.NotificationPreference) {
			p.Channels["pager"] = models.ChannelSetting{Enabled: true}
		}, ErrUnknownChannel},
		{"тихие часы без конца", func(p *models.NotificationPreference) {
			p.QuietHoursStart = strPtr("22:00")
		}, ErrInvalidQuietHours},
		{"невалидная таймзона", func(p *models.NotificationPreference) {
			p.Timezone = "Mars/Olympus"
		}, ErrInvalidTimezone},
		{"невалидный формат", func(p *models.NotificationPreference) {
			p.Format = "rich"
		}, ErrInvalidFormat},
		{"отрицательный лимит", func(p *models.NotificationPreference) {
			p.MaxNotificationsPerHour = -1
		}, ErrInvalidHourlyCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPreferenceService(newMockPrefRepo(), testKey)
			pref := validPreference()
			tt.mutate(pref)

			if err := svc.Update(pref); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPreferenceServiceTokenRotation(t *testing.T) {
	repo := newMockPrefRepo(validPreference())
	svc := NewPreferenceService(repo, testKey)

	token, err := svc.RotateToken(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected plaintext token")
	}
	if repo.prefs[7].APITokenHash == "" || repo.prefs[7].APITokenHash == token {
		t.Error("stored value must be a hash, not the plaintext token")
	}

	if err := svc.VerifyToken(7, token); err != nil {
		t.Errorf("freshly rotated token must verify: %v", err)
	}
	if err := svc.VerifyToken(7, "wrong-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if err := svc.VerifyToken(999, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("user without token must fail, got %v", err)
	}
}
