package state

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// FailedList is the flat record of assets that failed in the last run.
type FailedList struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Paths       []string  `json:"paths"`
}

// WriteFailedList atomically replaces the failed list at path. An empty
// list is still written so a clean run clears the previous failures.
func WriteFailedList(path string, list FailedList) error {
	if list.Paths == nil {
		list.Paths = []string{}
	}
	w, err := newAtomicWriter(path)
	if err != nil {
		return errors.Wrap(err, "write failed list")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		w.Abort()
		return errors.Wrap(err, "encode failed list")
	}
	return errors.Wrap(w.Commit(), "write failed list")
}

// ReadFailedList loads the failed list at path. A missing file is an empty
// list.
func ReadFailedList(path string) (FailedList, error) {
	var list FailedList
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return list, nil
	}
	if err != nil {
		return list, errors.Wrap(err, "read failed list")
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return list, errors.Wrapf(err, "parse failed list %s", path)
	}
	return list, nil
}
