package shopify

// Spec returns the JSON schema of the configuration file.
func Spec() map[string]any {
	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
	duration := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc, "pattern": `^([0-9]+(\.[0-9]+)?(ns|us|ms|s|m|h))+$`}
	}

	return map[string]any{
		"documentationUrl": "https://shopify.dev/docs/api/admin-rest",
		"connectionSpecification": map[string]any{
			"$schema":  "http://json-schema.org/draft-07/schema#",
			"title":    "Shopify Source Spec",
			"type":     "object",
			"required": []string{"shop", "credentials", "start_date"},
			"properties": map[string]any{
				"shop": str("The name of your store, e.g. 'my-store' or 'my-store.myshopify.com'."),
				"credentials": map[string]any{
					"type":     "object",
					"required": []string{"auth_method"},
					"properties": map[string]any{
						"auth_method": map[string]any{
							"type": "string",
							"enum": []string{"access_token", "api_password", "client_credentials"},
						},
						"access_token":  map[string]any{"type": "string", "airbyte_secret": true},
						"client_id":     map[string]any{"type": "string", "airbyte_secret": true},
						"client_secret": map[string]any{"type": "string", "airbyte_secret": true},
					},
				},
				"start_date": map[string]any{
					"type":        "string",
					"format":      "date",
					"pattern":     `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`,
					"description": "Records updated before this date are not read.",
				},
				"api_version": str("Admin API version, e.g. 2024-04."),
				"page_size":   map[string]any{"type": "integer", "minimum": 1, "maximum": 250, "default": 250},
				"streams":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"schemas_dir": str("Directory whose <stream>.json files override the built-in schemas."),
				"validate_records": map[string]any{
					"type":    "boolean",
					"default": false,
				},
				"bulk": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"window_in_days":    map[string]any{"type": "integer", "minimum": 1, "default": 30},
						"poll_interval":     duration("First delay between bulk operation status checks."),
						"max_poll_interval": duration("Upper bound of the poll backoff."),
						"poll_timeout":      duration("Wall-clock limit of one bulk operation."),
						"submit_retries":    map[string]any{"type": "integer", "minimum": 0, "default": 6},
					},
				},
				"rate_limits": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"rest_per_sec":   map[string]any{"type": "number", "exclusiveMinimum": 0, "default": 2},
						"rest_burst":     map[string]any{"type": "integer", "minimum": 1, "default": 40},
						"load_threshold": map[string]any{"type": "number", "exclusiveMinimum": 0, "maximum": 1, "default": 0.9},
					},
				},
				"reliability": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"retry_attempts":  map[string]any{"type": "integer", "minimum": 1, "default": 5},
						"retry_delay":     duration("First delay between retries of a transient failure."),
						"max_retry_delay": duration("Upper bound of the retry backoff."),
						"request_timeout": duration("Timeout of one HTTP request."),
						"enable_http2":    map[string]any{"type": "boolean", "default": true},
					},
				},
			},
		},
	}
}
