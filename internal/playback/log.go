package playback

import l "github.com/sirupsen/logrus"

var log *l.Entry = l.WithFields(l.Fields{"component": "playback"})
