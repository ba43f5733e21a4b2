package model

import "errors"

// ErrDuplicate нарушено ограничение уникальности в хранилище
var ErrDuplicate = errors.New("duplicate record")
