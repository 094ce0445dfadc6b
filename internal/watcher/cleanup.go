package watcher

import "strconv"

func (session *Session) sweep() {
	if removed := session.sweepStale(); removed > 0 {
		session.logger.Info("stale watches swept", map[string]string{
			"removed": strconv.Itoa(removed),
		})
	}
}

// sweepStale drops every registered directory that no longer exists.
func (session *Session) sweepStale() int {
	removed := 0
	for _, dir := range session.registry.dirs() {
		if _, ok := session.registry.lookup(dir); !ok {
			continue
		}
		if dirExists(dir) {
			continue
		}
		before := session.registry.len()
		session.dropTree(dir)
		removed += before - session.registry.len()
	}
	return removed
}
