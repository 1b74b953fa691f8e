package cache

import "fmt"

func ImageVersionKey() string {
	return "neuroscout:image_version"
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
