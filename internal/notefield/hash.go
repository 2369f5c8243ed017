package notefield

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/conorfennell/cardmerge/internal/domain"
)

// Normalize reduces a note's first field to the text a reader would compare.
// Markup is dropped, case is folded and whitespace collapsed, so "<b>Go</b> "
// and "go" normalize the same.
func Normalize(flds string) string {
	return strings.ToLower(Plain(FirstField(flds)))
}

// Hash returns the SHA-256 of the normalized first field as a hex string.
func Hash(flds string) string {
	hashBytes := sha256.Sum256([]byte(Normalize(flds)))
	return fmt.Sprintf("%x", hashBytes)
}

// Checksum returns the host's duplicate-check value for a note: the first
// eight hex digits of the SHA-1 of the plain first field.
func Checksum(flds string) int64 {
	sum := sha1.Sum([]byte(Plain(FirstField(flds))))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}

// GroupDuplicates returns the groups of notes whose first fields normalize
// identically. Notes with an empty first field are never grouped. Groups are
// ordered by their oldest note and notes within a group by id.
func GroupDuplicates(notes []domain.Note) [][]domain.Note {
	byHash := make(map[string][]domain.Note)
	for _, n := range notes {
		if Normalize(n.Fields) == "" {
			continue
		}
		h := Hash(n.Fields)
		byHash[h] = append(byHash[h], n)
	}

	var groups [][]domain.Note
	for _, group := range byHash {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}
