package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"alertd/internal/models"
	"alertd/pkg/crypto"
	"alertd/pkg/utils"
)

// Ошибки сервиса настроек
var (
	ErrInvalidQuietHours = errors.New("quiet hours require both start and end as HH:MM")
	ErrInvalidTimezone   = errors.New("timezone must be a valid IANA name")
	ErrInvalidFormat     = errors.New("format must be plain or detailed")
	ErrInvalidHourlyCap  = errors.New("max notifications per hour must be non-negative")
	ErrInvalidThreshold  = errors.New("priority threshold must be non-negative")
	ErrInvalidToken      = errors.New("invalid API token")
)

// PreferenceService - бизнес-логика настроек доставки
//
// Credentials каналов шифруются AES-256-GCM перед записью и никогда
// не возвращаются наружу. API токен хранится как bcrypt hash
type PreferenceService struct {
	prefRepo      PreferenceRepositoryInterface
	encryptionKey []byte
}

// NewPreferenceService создает новый экземпляр сервиса настроек
func NewPreferenceService(prefRepo PreferenceRepositoryInterface, encryptionKey []byte) *PreferenceService {
	return &PreferenceService{
		prefRepo:      prefRepo,
		encryptionKey: encryptionKey,
	}
}

// Get возвращает настройки пользователя с замаскированными credentials
func (s *PreferenceService) Get(userID int64) (*models.NotificationPreference, error) {
	pref, err := s.prefRepo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	masked := make(map[string]models.ChannelSetting, len(pref.Channels))
	for name, cs := range pref.Channels {
		cs.Credential = ""
		masked[name] = cs
	}
	pref.Channels = masked
	pref.APITokenHash = ""

	return pref, nil
}

// Update сохраняет настройки пользователя
//
// Credential в запросе трактуется как plaintext и шифруется. Пустой
// credential означает "оставить прежний"
func (s *PreferenceService) Update(pref *models.NotificationPreference) error {
	if err := s.validate(pref); err != nil {
		return err
	}

	existing, err := s.prefRepo.GetByUserID(pref.UserID)
	if err != nil {
		return err
	}

	channels := make(map[string]models.ChannelSetting, len(pref.Channels))
	for name, cs := range pref.Channels {
		if cs.Credential != "" {
			encrypted, err := crypto.Encrypt(cs.Credential, s.encryptionKey)
			if err != nil {
				return err
			}
			cs.Credential = encrypted
		} else if prev, ok := existing.Channels[name]; ok {
			cs.Credential = prev.Credential
		}
		channels[name] = cs
	}
	pref.Channels = channels

	// Токен через Update не меняется
	pref.APITokenHash = existing.APITokenHash

	return s.prefRepo.Upsert(pref)
}

// Credential возвращает расшифрованный credential канала.
// Для внутреннего использования адаптерами каналов
func (s *PreferenceService) Credential(userID int64, channel string) (string, error) {
	pref, err := s.prefRepo.GetByUserID(userID)
	if err != nil {
		return "", err
	}

	cs, ok := pref.Channels[channel]
	if !ok || cs.Credential == "" {
		return "", nil
	}

	return crypto.Decrypt(cs.Credential, s.encryptionKey)
}

// RotateToken выпускает новый API токен и возвращает его plaintext.
// Plaintext показывается один раз, хранится только bcrypt hash
func (s *PreferenceService) RotateToken(userID int64) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	hash, err := crypto.HashToken(token)
	if err != nil {
		return "", err
	}

	pref, err := s.prefRepo.GetByUserID(userID)
	if err != nil {
		return "", err
	}
	pref.APITokenHash = hash

	if err := s.prefRepo.Upsert(pref); err != nil {
		return "", err
	}

	return token, nil
}

// VerifyToken проверяет API токен пользователя
func (s *PreferenceService) VerifyToken(userID int64, token string) error {
	hash, err := s.prefRepo.GetTokenHash(userID)
	if err != nil {
		return ErrInvalidToken
	}
	if err := crypto.VerifyToken(token, hash); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func (s *PreferenceService) validate(pref *models.NotificationPreference) error {
	for name := range pref.Channels {
		if !models.ValidChannels[name] {
			return ErrUnknownChannel
		}
	}

	if (pref.QuietHoursStart == nil) != (pref.QuietHoursEnd == nil) {
		return ErrInvalidQuietHours
	}
	if pref.QuietHoursStart != nil {
		if utils.ValidateClock(*pref.QuietHoursStart) != nil || utils.ValidateClock(*pref.QuietHoursEnd) != nil {
			return ErrInvalidQuietHours
		}
	}

	if utils.ValidateTimezone(pref.Timezone) != nil {
		return ErrInvalidTimezone
	}

	if pref.Format != "" && pref.Format != models.FormatPlain && pref.Format != models.FormatDetailed {
		return ErrInvalidFormat
	}
	if pref.Format == "" {
		pref.Format = models.FormatPlain
	}

	if pref.MaxNotificationsPerHour < 0 {
		return ErrInvalidHourlyCap
	}
	if pref.PriorityThreshold < 0 {
		return ErrInvalidThreshold
	}

	return nil
}
