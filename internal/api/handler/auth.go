package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "restockbot"
	roleAdmin   = "admin"
	subjectKey  = "admin_subject"
)

var errNotAdmin = errors.New("token does not carry the admin role")

// Authenticator issues and checks HS256 admin tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// GenerateAdminToken signs a token for subject that expires after ttl.
func (a *Authenticator) GenerateAdminToken(subject string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("admin JWT secret is not configured")
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": roleAdmin,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"iss":  tokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseAdminToken validates tokenString and returns its subject.
func (a *Authenticator) ParseAdminToken(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("admin JWT secret is not configured")
	}
	keyFunc := func(t *jwt.Token) (any, error) { return a.secret, nil }
	token, err := jwt.Parse(tokenString, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errNotAdmin
	}
	if role, _ := claims["role"].(string); role != roleAdmin {
		return "", errNotAdmin
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errNotAdmin
	}
	return sub, nil
}

// AdminOnly rejects requests without a valid admin bearer token.
func (a *Authenticator) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}
		sub, err := a.ParseAdminToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set(subjectKey, sub)
		c.Next()
	}
}

func actor(c *gin.Context) string {
	return c.GetString(subjectKey)
}
