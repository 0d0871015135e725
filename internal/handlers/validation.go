package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/formgate/pkg/errors"
	"github.com/charlesng35/formgate/pkg/response"
)

// bindJSON binds the JSON payload into dest. When binding fails, an error response is
// written and false is returned. Field presence rules are enforced by the services.
func bindJSON[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	return true
}

// flexibleInt accepts a JSON number, a numeric string, an empty string or null.
// HTML forms post every value as a string.
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*f = 0
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = 0
			return nil
		}
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("age must be an integer: %w", err)
	}
	*f = flexibleInt(n)
	return nil
}
