package profile

import "embed"

//go:embed default.yaml
var Embedded embed.FS
