package common

// AccessTokenHeaderName is the gRPC metadata key carrying the access token
// of an event feed subscriber.
const AccessTokenHeaderName = "access_token"

// AppName is used for keyring service names, temp directories and S3 keys.
const AppName = "gophvault"
