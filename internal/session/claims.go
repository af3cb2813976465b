package session

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"ticket-storefront/models"
)

// userFromToken reads the visitor identity from an access token without
// verifying it. The backend stays the authority; this only fills the
// session while a refresh cannot be made. Returns nil when the token
// carries no usable identity.
func userFromToken(token string) *models.User {
	if token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	u := &models.User{
		Email:       stringClaim(claims, "email"),
		FirstName:   stringClaim(claims, "firstName"),
		LastName:    stringClaim(claims, "lastName"),
		PhoneNumber: stringClaim(claims, "phoneNumber"),
	}
	if member, ok := claims["isMember"].(bool); ok {
		u.IsMember = member
	}

	switch id := claims["id"].(type) {
	case float64:
		u.ID = int64(id)
	case string:
		u.ID, _ = strconv.ParseInt(id, 10, 64)
	}
	if u.ID == 0 {
		if sub, err := claims.GetSubject(); err == nil {
			u.ID, _ = strconv.ParseInt(sub, 10, 64)
		}
	}

	if u.ID == 0 && u.Email == "" {
		return nil
	}
	return u
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}
