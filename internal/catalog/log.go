package catalog

import l "github.com/sirupsen/logrus"

var log *l.Entry = l.WithFields(l.Fields{"component": "catalog"})
