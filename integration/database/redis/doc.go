// Package redis creates go-redis clients from a REDIS_URL style
// configuration and exposes a ping based health check.
//
// Connect validates the URL, then pings the server with exponential backoff
// until it answers or the attempts run out:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// The client backs the shared rate limit buckets and the challenge replay
// store when more than one instance serves traffic.
package redis
