//go:build !flashverify

package flash

const verifyByDefault = false
