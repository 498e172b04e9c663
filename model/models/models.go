package models

import (
	_ "github.com/cortml/cort/model/models/cort"
)
