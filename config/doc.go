// Package config loads the service configuration.
//
// A Config is built once at startup and passed by reference to every
// component. Loading starts from DefaultConfig, overlays each YAML layer in
// order, applies CIBOARD_* environment overrides and finally validates,
// which fills the remaining defaults of every section.
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/ciboard/ciboard.yaml")
//	loader.AddLayer("ciboard.local.yaml") // overrides the first layer
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Overrides
//
// Single values:
//
//	CIBOARD_BIND_ADDRESS      server.bind_address
//	CIBOARD_ES_URL            search.addresses (comma separated)
//	CIBOARD_ES_USERNAME       search.username
//	CIBOARD_ES_PASSWORD       search.password
//	CIBOARD_ES_INDEX_PREFIX   search.index_prefix
//	CIBOARD_GREENWAVE_URL     greenwave.url
//	CIBOARD_WAIVERDB_URL      waiverdb.url
//	CIBOARD_CACHE_BACKEND     cache.backend
//	CIBOARD_NATS_URL          cache.nats.url
//
// Instance endpoints use the instance name in the variable:
//
//	CIBOARD_KOJI_<INSTANCE>_URL, CIBOARD_MBS_<INSTANCE>_URL,
//	CIBOARD_DISTGIT_<INSTANCE>_URL
//
// for example CIBOARD_KOJI_BREW_URL sets koji.instances.brew.url.
package config
