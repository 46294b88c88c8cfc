// Package normalizer turns untrusted chat payloads into a safe, ordered
// sequence of user/assistant messages.
package normalizer

import (
	"bytes"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
)

// Normalize converts v into chat messages. Anything that is not a slice or
// array yields an empty result. Malformed elements degrade to an empty user
// message instead of failing the batch, and the system role can never be
// produced from input.
func Normalize(v any) []models.Message {
	if v == nil {
		return []models.Message{}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []models.Message{}
	}

	out := make([]models.Message, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, normalizeOne(rv.Index(i).Interface()))
	}
	return out
}

// FromJSON decodes a request body of the form {"messages": [...]} and
// normalizes its messages field. Bodies that do not decode to an object
// yield an empty result.
func FromJSON(body []byte) []models.Message {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var req map[string]any
	if err := dec.Decode(&req); err != nil || req == nil {
		return []models.Message{}
	}
	return Normalize(req["messages"])
}

func normalizeOne(elem any) models.Message {
	switch m := elem.(type) {
	case map[string]any:
		return models.Message{Role: toRole(m["role"]), Content: toContent(m["content"])}
	case models.Message:
		return models.Message{Role: toRole(m.Role), Content: toContent(m.Content)}
	case *models.Message:
		if m == nil {
			break
		}
		return models.Message{Role: toRole(m.Role), Content: toContent(m.Content)}
	}
	return models.Message{Role: models.RoleUser, Content: ""}
}

func toRole(v any) string {
	s, _ := v.(string)
	if strings.ToLower(s) == models.RoleAssistant {
		return models.RoleAssistant
	}
	return models.RoleUser
}

func toContent(v any) string {
	return truncate(stringify(v), models.MaxContentLength)
}

func stringify(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case json.Number:
		return c.String()
	case bool:
		return strconv.FormatBool(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// truncate keeps the first max characters of s.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
