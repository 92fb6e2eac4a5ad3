package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LOUNGE_TEST_MODE") == "" {
			_ = os.Setenv("LOUNGE_TEST_MODE", "1")
		}
	})
}
