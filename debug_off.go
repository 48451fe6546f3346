//go:build !debug

package warehouse

const isDebugBuild = false
