package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"jababank/models"
	"jababank/pkg/core"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type Tokens struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// IssueTokens creates an access token carrying the actor claims and a new
// refresh token.
func (s *Service) IssueTokens(ctx context.Context, user *models.User) (Tokens, error) {
	access, err := s.accessToken(user)
	if err != nil {
		return Tokens{}, err
	}
	var refresh string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refresh, err = s.storeRefreshToken(tx, user.ID)
		return err
	})
	if err != nil {
		return Tokens{}, core.Storage("issue tokens", err)
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) accessToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    fmt.Sprint(user.ID),
		"uid":    user.ID,
		"email":  user.Email,
		"role":   string(user.Role),
		"status": string(user.Status),
		"exp":    s.now().Add(s.opts.AccessTTL).Unix(),
	})
	return token.SignedString(s.opts.Secret)
}

// ParseAccessToken verifies an access token and returns the actor it names.
func (s *Service) ParseAccessToken(raw string) (core.Actor, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return s.opts.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return core.Actor{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return core.Actor{}, ErrInvalidToken
	}
	uid, _ := claims["uid"].(float64)
	roleClaim, _ := claims["role"].(string)
	statusClaim, _ := claims["status"].(string)
	role, okRole := models.ParseRole(roleClaim)
	status, okStatus := models.ParseUserStatus(statusClaim)
	if uid <= 0 || !okRole || !okStatus {
		return core.Actor{}, ErrInvalidToken
	}
	return core.Actor{UserID: uint(uid), Role: role, Status: status}, nil
}

// Authorize verifies an access token and reloads the user it names, so a
// status or role change applies to tokens issued before it.
func (s *Service) Authorize(ctx context.Context, raw string) (core.Actor, error) {
	claimed, err := s.ParseAccessToken(raw)
	if err != nil {
		return core.Actor{}, err
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "role", "status").First(&user, claimed.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Actor{}, ErrInvalidToken
		}
		return core.Actor{}, core.Storage("authorize", err)
	}
	return core.Actor{UserID: user.ID, Role: user.Role, Status: user.Status}, nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// storeRefreshToken generates a random refresh token, stores its hash and
// returns the raw token.
func (s *Service) storeRefreshToken(tx *gorm.DB, userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	raw := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: hashToken(raw), ExpiresAt: s.now().Add(s.opts.RefreshTTL)}
	if err := tx.Create(&rt).Error; err != nil {
		return "", err
	}
	return raw, nil
}

// Refresh exchanges a refresh token for new tokens and revokes the old one.
// The user is reloaded so status or role changes take effect.
func (s *Service) Refresh(ctx context.Context, raw string) (Tokens, error) {
	var out Tokens
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND revoked = ? AND expires_at > ?", hashToken(raw), false, s.now()).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}
		var rt models.RefreshToken
		if err := tx.Where("token_hash = ?", hashToken(raw)).First(&rt).Error; err != nil {
			return err
		}
		var user models.User
		if err := tx.First(&user, rt.UserID).Error; err != nil {
			return ErrInvalidToken
		}
		if user.Status != models.StatusActive {
			return ErrNotActive
		}
		access, err := s.accessToken(&user)
		if err != nil {
			return err
		}
		refresh, err := s.storeRefreshToken(tx, user.ID)
		if err != nil {
			return err
		}
		out = Tokens{AccessToken: access, RefreshToken: refresh}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotActive) {
			return Tokens{}, err
		}
		return Tokens{}, core.Storage("refresh token", err)
	}
	return out, nil
}

// Revoke invalidates a refresh token, e.g. on logout.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", hashToken(raw)).Update("revoked", true)
	if res.Error != nil {
		return core.Storage("revoke token", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidToken
	}
	return nil
}
