// Package secrets resolves ${secret:name} references in credentials.
//
// Git tokens and SSH key passphrases should not sit in the config file.
// Instead the config names a secret:
//
//	document:
//	  git:
//	    auth:
//	      type: token
//	      token: ${secret:git-token}
//
// A Resolver looks the name up in its providers in order. The environment
// provider maps "git-token" to CONSTITUTION_SECRET_GIT_TOKEN. The file
// provider reads <dir>/git-token, the layout of a mounted Kubernetes
// secret. Resolved values are cached for secrets.cache_ttl.
package secrets
