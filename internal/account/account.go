// Package account holds users, membership levels and password handling.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/guregu/null/v6"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactive           = errors.New("account disabled")
	ErrNotFound           = errors.New("user not found")
)

type Level string

const (
	LevelFree    Level = "free"
	LevelPremium Level = "premium"
	LevelVIP     Level = "vip"
)

// ParseLevel maps unknown values to LevelFree.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelPremium:
		return LevelPremium
	case LevelVIP:
		return LevelVIP
	default:
		return LevelFree
	}
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Level        Level     `json:"membership_level"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    null.Time `json:"last_login"`
	Active       bool      `json:"is_active"`
}

func (u *User) IsPremium() bool { return u.Level == LevelPremium || u.Level == LevelVIP }
func (u *User) IsVIP() bool     { return u.Level == LevelVIP }

// SetPassword stores a bcrypt hash of password.
func (u *User) SetPassword(password string) error {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(h)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Features lists what a membership level unlocks. A null limit means
// unlimited.
type Features struct {
	BasicSearch      bool     `json:"basic_search"`
	AdvancedAnalysis bool     `json:"advanced_analysis"`
	ExportData       bool     `json:"export_data"`
	PriceAlerts      bool     `json:"price_alerts"`
	APIAccess        bool     `json:"api_access"`
	PrioritySupport  bool     `json:"priority_support"`
	CustomIndicators bool     `json:"custom_indicators"`
	DailyLimit       null.Int `json:"daily_limit"`
	WatchlistLimit   null.Int `json:"watchlist_limit"`
	HistoryDays      null.Int `json:"history_days"`
}

func FeaturesFor(l Level) Features {
	f := Features{
		BasicSearch:    true,
		DailyLimit:     null.IntFrom(50),
		WatchlistLimit: null.IntFrom(10),
		HistoryDays:    null.IntFrom(7),
	}
	switch l {
	case LevelPremium:
		f.AdvancedAnalysis, f.ExportData, f.PriceAlerts = true, true, true
		f.DailyLimit = null.IntFrom(500)
		f.WatchlistLimit = null.IntFrom(100)
		f.HistoryDays = null.IntFrom(365)
	case LevelVIP:
		f.AdvancedAnalysis, f.ExportData, f.PriceAlerts = true, true, true
		f.APIAccess, f.PrioritySupport, f.CustomIndicators = true, true, true
		f.DailyLimit = null.Int{}
		f.WatchlistLimit = null.Int{}
		f.HistoryDays = null.Int{}
	}
	return f
}

func (u *User) Features() Features { return FeaturesFor(u.Level) }

// Registration is the sign-up form.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm_password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// ValidationError maps field names to localized messages.
type ValidationError map[string]string

func (e ValidationError) Error() string {
	parts := make([]string, 0, len(e))
	for _, k := range []string{"username", "email", "password", "confirm_password", "full_name", "phone"} {
		if msg, ok := e[k]; ok {
			parts = append(parts, k+": "+msg)
		}
	}
	return "invalid registration: " + strings.Join(parts, "; ")
}

const (
	msgUsername = "用戶名長度需在3-20字符之間"
	msgEmail    = "請輸入有效的電子信箱"
	msgPassword = "密碼至少需要6位字符"
	msgConfirm  = "密碼不匹配"
)

func (r Registration) Validate() error {
	errs := ValidationError{}
	check := func(field string, value any, rules ...validation.Rule) {
		if err := validation.Validate(value, rules...); err != nil {
			errs[field] = err.Error()
		}
	}
	check("username", strings.TrimSpace(r.Username),
		validation.Required.Error(msgUsername), validation.RuneLength(3, 20).Error(msgUsername))
	check("email", strings.TrimSpace(r.Email),
		validation.Required.Error(msgEmail), validation.By(email))
	check("password", r.Password,
		validation.Required.Error(msgPassword), validation.RuneLength(6, 0).Error(msgPassword))
	check("confirm_password", r.Confirm, validation.By(func(v any) error {
		if v.(string) != r.Password {
			return errors.New(msgConfirm)
		}
		return nil
	}))
	check("full_name", r.FullName, validation.RuneLength(0, 50).Error("姓名過長"))
	check("phone", r.Phone, validation.RuneLength(0, 20).Error("電話號碼過長"))
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func email(v any) error {
	s, _ := v.(string)
	a, err := mail.ParseAddress(s)
	if err != nil || a.Address != s {
		return errors.New(msgEmail)
	}
	return nil
}

// Users is the persistence the service needs.
type Users interface {
	CreateUser(ctx context.Context, u *User) error
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

type Service struct {
	Users Users
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Register validates r and creates a free user.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(r.Username)
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if _, err := s.Users.UserByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.Users.UserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u := &User{
		Username:  username,
		Email:     email,
		FullName:  strings.TrimSpace(r.FullName),
		Phone:     strings.TrimSpace(r.Phone),
		Level:     LevelFree,
		CreatedAt: s.now().UTC(),
		Active:    true,
	}
	if err := u.SetPassword(r.Password); err != nil {
		return nil, err
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate checks credentials and records the login time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.Users.UserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrInactive
	}
	now := s.now().UTC()
	if err := s.Users.TouchLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	u.LastLogin = null.TimeFrom(now)
	return u, nil
}
