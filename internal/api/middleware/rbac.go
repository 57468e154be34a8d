package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Role is the access level carried in a token's "role" claim. Levels are
// ordered: an operator can do everything a viewer can, and admin everything.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{RoleViewer: 1, RoleOperator: 2, RoleAdmin: 3}

// ParseRole accepts the claim spelling, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleRank[r]; !ok {
		return "", fmt.Errorf("unknown role %q (want viewer, operator or admin)", s)
	}
	return r, nil
}

// Allows reports whether r meets the minimum level.
func (r Role) Allows(min Role) bool {
	rank, ok := roleRank[r]
	return ok && rank >= roleRank[min]
}

// RequireRole lets through callers whose role is at least min.
// It MUST be used AFTER RequireAuth.
func RequireRole(min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claim, exists := c.Get("user_role")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Role context missing"})
			return
		}
		s, _ := claim.(string)
		role, err := ParseRole(s)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		if !role.Allows(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": fmt.Sprintf("Forbidden: %s access required, token grants %s", min, role),
			})
			return
		}
		c.Next()
	}
}
