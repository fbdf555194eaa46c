package ascii

import "time"

func realNow() int64 { return time.Now().Unix() }
