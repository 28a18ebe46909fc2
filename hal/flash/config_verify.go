//go:build flashverify

package flash

const verifyByDefault = true
