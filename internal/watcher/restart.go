package watcher

import (
	"strconv"
	"time"
)

func (session *Session) rewalkC() <-chan time.Time {
	if session.rewalkTimer == nil {
		return nil
	}
	return session.rewalkTimer.C
}

// scheduleRewalk runs a full re-walk now if the limiter allows it, or arms
// a timer for when it will. At most one re-walk is pending.
func (session *Session) scheduleRewalk() {
	if session.rewalkTimer != nil || session.ctx.Err() != nil {
		return
	}
	reservation := session.limiter.Reserve()
	if !reservation.OK() {
		return
	}
	delay := reservation.Delay()
	if delay <= 0 {
		session.rewalk()
		return
	}
	session.rewalkTimer = time.NewTimer(delay)
	session.logDebug("rewalk deferred "+delay.String(), session.root)
}

// rewalk reconciles the registry with the tree after events may have been
// lost. Registered directories are re-added, since one may have been
// replaced unseen. It then publishes a metadata notification so consumers
// do a full refresh.
func (session *Session) rewalk() {
	if session.ctx.Err() != nil {
		return
	}
	session.rewalks.Add(1)
	session.metrics.IncRewalk()

	removed := session.sweepStale()
	added := 0
	if dirExists(session.root) {
		added = session.refreshTree(session.root)
	}
	session.logger.Info("watch tree rewalked", map[string]string{
		"added":        strconv.Itoa(added),
		"removed":      strconv.Itoa(removed),
		"watched_dirs": strconv.Itoa(session.registry.len()),
	})

	session.bus.Publish(Notification(true))
	session.notifications.Add(1)
}
