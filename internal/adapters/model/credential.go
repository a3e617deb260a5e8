package model

import "os"

// lookupCredential reads an API credential from the named environment
// variable. An empty envVar always yields no credential.
func lookupCredential(envVar string) string {
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}
