package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"rewards_service/internal/account"
	"rewards_service/internal/logging"
)

const (
	AccountIDKey = "account_id"
	RoleKey      = "role"

	RolePlayer      = "player"
	RoleWithdrawals = "withdrawals"
	RoleAdmin       = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the registered claims plus the caller's role. Subject is the
// external account id.
type Claims struct {
	jwt.Claims
	Role string `json:"role,omitempty"`
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, leeway time.Duration) *Authenticator {
	return &Authenticator{key: []byte(secret), issuer: issuer, leeway: leeway, now: time.Now}
}

// Issue signs a token for accountID. Used by the token command and tests.
func (a *Authenticator) Issue(accountID, role string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: a.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	now := a.now()
	claims := Claims{
		Claims: jwt.Claims{
			Issuer:   a.issuer,
			Subject:  accountID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}

// Verify parses raw and checks its signature, issuer and validity window.
func (a *Authenticator) Verify(raw string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	var claims Claims
	if err := tok.Claims(a.key, &claims); err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	expected := jwt.Expected{Issuer: a.issuer, Time: a.now()}
	if err := claims.ValidateWithLeeway(expected, a.leeway); err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Expiry == nil {
		return nil, errors.Join(ErrInvalidToken, errors.New("token has no expiry"))
	}
	if claims.Role == "" {
		claims.Role = RolePlayer
	}
	return &claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// account id and role on the context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logging.FromContext(c.Request.Context())

		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := a.Verify(parts[1])
		if err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error()})
			return
		}
		if err := account.Validate(claims.Subject); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(AccountIDKey, claims.Subject)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole lets through only callers whose token carries role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
