package auth

import (
	"encoding/base64"
	"strconv"
	"strings"
)

const resetSecretLength = 32

// NewResetToken returns the token handed to the user and the secret whose
// hash is stored. The token embeds the user id so the stored hash can be
// found without scanning.
func NewResetToken(userID int64) (token, secret string, err error) {
	secret, err = RandomString(resetSecretLength)
	if err != nil {
		return "", "", err
	}

	raw := strconv.FormatInt(userID, 10) + ":" + secret
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), secret, nil
}

func ParseResetToken(token string) (userID int64, secret string, err error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", ErrInvalidToken
	}

	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", ErrInvalidToken
	}

	userID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", ErrInvalidToken
	}

	return userID, parts[1], nil
}
