package simulator

import "errors"

var (
	ErrPublish  = errors.New("simulator publish failed")
	ErrVerify   = errors.New("simulator verification failed")
	ErrMismatch = errors.New("stored shots differ from the published plan")
)
