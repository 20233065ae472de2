package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/proctorly/exam-engine/internal/config"
	"github.com/proctorly/exam-engine/internal/models"
	"github.com/proctorly/exam-engine/internal/repositories"
	"github.com/proctorly/exam-engine/internal/utils"
)

// Authenticator verifies bearer tokens against the identity collaborator and
// mirrors the verified subject into the local users table.
type Authenticator struct {
	client *casdoorsdk.Client
	users  repositories.UserRepository
	logger utils.Logger
}

func NewAuthenticator(cfg *config.Config, users repositories.UserRepository, logger utils.Logger) *Authenticator {
	client := casdoorsdk.NewClient(
		cfg.CasdoorEndpoint,
		cfg.CasdoorClientID,
		cfg.CasdoorClientSecret,
		cfg.CasdoorCertificate,
		cfg.CasdoorOrganization,
		cfg.CasdoorApplication,
	)
	return &Authenticator{
		client: client,
		users:  users,
		logger: logger,
	}
}

// Middleware validates the Authorization header and stores the verified
// subject and role in the request context. Requests without a valid token
// never reach a handler.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Missing bearer token",
			})
			return
		}

		claims, err := a.client.ParseJwtToken(token)
		if err != nil {
			a.logger.Warn("token verification failed", "error", err, "remote_addr", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid or expired token",
			})
			return
		}

		role := roleFromClaims(claims)
		c.Set("user_id", claims.User.Id)
		c.Set("user_role", role)

		a.syncUser(c, claims, role)

		c.Next()
	}
}

// RequireRole gates a route group to the given roles.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("user_role")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "User not authenticated",
			})
			return
		}
		current := value.(models.UserRole)
		for _, role := range roles {
			if current == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Message: "Insufficient role",
		})
	}
}

// syncUser mirrors the verified identity locally so submissions can join on
// it. Sync failures are logged, not fatal; the token already proved identity.
func (a *Authenticator) syncUser(c *gin.Context, claims *casdoorsdk.Claims, role models.UserRole) {
	if a.users == nil {
		return
	}
	ctx := c.Request.Context()
	user := &models.User{
		ID:       claims.User.Id,
		FullName: claims.User.DisplayName,
		Email:    claims.User.Email,
		Role:     role,
		IsActive: true,
	}
	if err := a.users.Upsert(ctx, user); err != nil {
		a.logger.Warn("user mirror upsert failed", "error", err, "user_id", user.ID)
		return
	}
	if err := a.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		a.logger.Warn("last login update failed", "error", err, "user_id", user.ID)
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func roleFromClaims(claims *casdoorsdk.Claims) models.UserRole {
	if claims.User.IsAdmin {
		return models.RoleAdmin
	}
	switch models.UserRole(claims.User.Tag) {
	case models.RoleTeacher:
		return models.RoleTeacher
	case models.RoleAdmin:
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}
