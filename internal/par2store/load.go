package par2store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zebware/par2/internal/par2fmt"
)

// DiscoverVolumes expands a user-supplied "x.par2" path into every sibling
// volume the format's naming convention recognizes: "x.par2" itself plus
// "x.*.par2" / "x.*.PAR2" (spec §6 "File naming"), in a stable sorted
// order so load determinism (spec §8 invariant 5) doesn't depend on the
// filesystem's directory iteration order.
func DiscoverVolumes(mainPath string) ([]string, error) {
	dir := filepath.Dir(mainPath)
	base := strings.TrimSuffix(filepath.Base(mainPath), filepath.Ext(mainPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".par2") {
			continue
		}
		if !strings.HasPrefix(lower, strings.ToLower(base)+".") {
			continue
		}
		full := filepath.Join(dir, name)
		if !seen[full] {
			seen[full] = true
			out = append(out, full)
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadVolumes reads every packet from each of the given paths into store.
// Per-file open/scan errors are reported via diag and otherwise ignored —
// a missing or unreadable volume just contributes nothing, it is not
// fatal (only an entirely absent Main packet is, per spec §4.6).
func LoadVolumes(paths []string, store *Store, diag func(path string, offset int64, reason string)) {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			if diag != nil {
				diag(p, 0, err.Error())
			}
			continue
		}
		path := p
		pkts := par2fmt.ReadAll(f, func(offset int64, reason string) {
			if diag != nil {
				diag(path, offset, reason)
			}
		})
		f.Close()
		for _, pkt := range pkts {
			store.Insert(pkt)
		}
	}
}
