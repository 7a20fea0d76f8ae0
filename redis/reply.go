package redis

import (
	"fmt"

	"github.com/spf13/cast"
)

// The helpers below convert a reply from Send or Do. They take the error
// too so calls can be chained:
//
//	n, err := redis.Int64(client.Do(ctx, "INCR", "hits"))

// Int64 converts an integer or numeric string reply.
func Int64(reply any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	if reply == nil {
		return 0, Nil
	}
	return cast.ToInt64E(reply)
}

// String converts a bulk or status reply.
func String(reply any, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if reply == nil {
		return "", Nil
	}
	return cast.ToStringE(reply)
}

// Int64s converts an array reply. Every element must be an integer or a
// numeric string; a nil element is an error.
func Int64s(reply any, err error) ([]int64, error) {
	items, err := array(reply, err)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]int64, len(items))
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("redis: element %d of array reply is nil", i)
		}
		v, err := cast.ToInt64E(item)
		if err != nil {
			return nil, fmt.Errorf("redis: element %d of array reply: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Strings converts an array reply. A nil element is an error; use Values
// when the array may contain missing entries, as MGET replies do.
func Strings(reply any, err error) ([]string, error) {
	items, err := array(reply, err)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("redis: element %d of array reply is nil", i)
		}
		v, err := cast.ToStringE(item)
		if err != nil {
			return nil, fmt.Errorf("redis: element %d of array reply: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Values returns an array reply as is. A nil reply yields Nil.
func Values(reply any, err error) ([]any, error) {
	items, err := array(reply, err)
	if err != nil {
		return nil, err
	}
	if items == nil {
		return nil, Nil
	}
	return items, nil
}

func array(reply any, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	switch v := reply.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("redis: expected array reply, got %T", reply)
	}
}
