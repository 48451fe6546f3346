//go:build debug

package warehouse

const isDebugBuild = true
