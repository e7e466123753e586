package security

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/golang-jwt/jwt/v5"
)

// EmailKey is the gin context key holding the verified reporter email.
const EmailKey = "email"

type Claims struct {
	Azp               string `json:"azp,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	keyfunc  jwt.Keyfunc
	methods  []string
	clientID string
	jwks     *keyfunc.JWKS
}

// NewHS256 verifies tokens signed with a shared secret.
func NewHS256(secret string) *Authenticator {
	key := []byte(secret)
	return &Authenticator{
		keyfunc: func(*jwt.Token) (interface{}, error) { return key, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
	}
}

// NewKeycloak verifies tokens against a Keycloak realm's JWKS. When clientID
// is set the token's azp must match it.
func NewKeycloak(jwksURL, clientID string) (*Authenticator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:  time.Hour,
		RefreshTimeout:   10 * time.Second,
		RefreshRateLimit: time.Minute * 5,
		RefreshErrorHandler: func(err error) {
			log.Printf("Error refreshing JWKS: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}
	return &Authenticator{
		keyfunc:  jwks.Keyfunc,
		methods:  []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"},
		clientID: clientID,
		jwks:     jwks,
	}, nil
}

// Verify parses and validates a raw token.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, a.keyfunc, jwt.WithValidMethods(a.methods))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if a.clientID != "" && claims.Azp != a.clientID {
		return nil, errors.New("invalid audience")
	}
	if claims.Email == "" {
		return nil, errors.New("token carries no email")
	}
	return claims, nil
}

// Middleware rejects requests without a valid token. The token is read from
// a JSON body field "token" or a Bearer Authorization header.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			unauthorized(c, "No token provided")
			return
		}

		claims, err := a.Verify(tokenString)
		if err != nil {
			log.Printf("JWT verification error: %v", err)
			unauthorized(c, "Invalid token")
			return
		}

		c.Set("user", claims.PreferredUsername)
		c.Set(EmailKey, claims.Email)
		c.Set("claims", claims)
		c.Next()
	}
}

// Close stops the JWKS refresh goroutine, if any.
func (a *Authenticator) Close() {
	if a.jwks != nil {
		a.jwks.EndBackground()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if c.Request.Body != nil && c.Request.ContentLength != 0 && strings.HasPrefix(c.ContentType(), "application/json") {
		var body struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil && body.Token != "" {
			return body.Token
		}
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
		"error":   "UNAUTHORIZED",
	})
}
