package assets

import (
	"fmt"
	"sort"
)

var ErrUnmappedStatus = fmt.Errorf("status code has no asset name")

// Name identifies the fixture a response is captured under. It is either a
// single static identifier or a mapping from expected status code to
// identifier, resolved once the response status is known.
type Name struct {
	single string
	byCode map[int]string
}

func Single(name string) Name {
	return Name{single: name}
}

func StatusKeyed(byCode map[int]string) Name {
	copied := make(map[int]string, len(byCode))
	for code, name := range byCode {
		copied[code] = name
	}
	return Name{byCode: copied}
}

func (n Name) IsStatusKeyed() bool {
	return n.byCode != nil
}

// Candidates returns every identifier the name could resolve to, ordered by
// status code for status keyed names.
func (n Name) Candidates() []string {
	if !n.IsStatusKeyed() {
		return []string{n.single}
	}
	codes := make([]int, 0, len(n.byCode))
	for code := range n.byCode {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	out := make([]string, len(codes))
	for i, code := range codes {
		out[i] = n.byCode[code]
	}
	return out
}

func (n Name) Resolve(status int) (string, error) {
	if !n.IsStatusKeyed() {
		return n.single, nil
	}
	name, ok := n.byCode[status]
	if !ok {
		return "", fmt.Errorf("%w: %d (expected one of %v)", ErrUnmappedStatus, status, n.Candidates())
	}
	return name, nil
}

func (n Name) String() string {
	if !n.IsStatusKeyed() {
		return n.single
	}
	return fmt.Sprint(n.byCode)
}
