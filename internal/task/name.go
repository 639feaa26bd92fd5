package task

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/slok/bosync/internal/model"
)

const nameSeparator = "::"

// Name returns the dedup name of a task, also used as its dispatch string.
func Name(t model.TaskType, targetID int64) string {
	return string(t) + nameSeparator + strconv.FormatInt(targetID, 10)
}

// ParseName splits a "type::id" dispatch string. A name without target ID is
// parsed as target 0.
func ParseName(name string) (model.TaskType, int64, error) {
	typ, id, found := strings.Cut(name, nameSeparator)
	if typ == "" {
		return "", 0, fmt.Errorf("empty task type in %q: %w", name, model.ErrNotValid)
	}
	if !found || id == "" {
		return model.TaskType(typ), 0, nil
	}

	targetID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || targetID < 0 {
		return "", 0, fmt.Errorf("invalid target id in %q: %w", name, model.ErrNotValid)
	}

	return model.TaskType(typ), targetID, nil
}
