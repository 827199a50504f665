package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (E101-E119)
	// ============================================

	"E101": {
		Category: CategoryConfig,
		Message:  "Client entry not configured",
		Detail:   "Every project needs a client target. Set \"client\" in loom.json to the client entry path.",
		DocURL:   "https://loom.dev/docs/errors/E101",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Server-render entry not configured",
		Detail:   "Every project needs a server-render target. Set \"ssr\" in loom.json to the server entry path.",
		DocURL:   "https://loom.dev/docs/errors/E102",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Duplicate target name",
		Detail:   "Target names must be unique across the client, ssr, and API targets. \"client\" and \"ssr\" are reserved.",
		DocURL:   "https://loom.dev/docs/errors/E103",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Colliding route prefix",
		Detail:   "Two API targets resolved to the same route prefix. Each API target must own a distinct prefix.",
		DocURL:   "https://loom.dev/docs/errors/E104",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Reference to undeclared target",
		Detail:   "A target was referenced by name but never declared in the configuration.",
		DocURL:   "https://loom.dev/docs/errors/E105",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "loom.json could not be read or parsed.",
		DocURL:   "https://loom.dev/docs/errors/E106",
	},
	"E107": {
		Category: CategoryConfig,
		Message:  "Invalid route prefix",
		Detail:   "API route prefixes must start with \"/\" and must not end with \"/\".",
		DocURL:   "https://loom.dev/docs/errors/E107",
	},
	"E108": {
		Category: CategoryConfig,
		Message:  "Missing entry path",
		Detail:   "A target was declared without an entry path.",
		DocURL:   "https://loom.dev/docs/errors/E108",
	},
	"E109": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or malformed.",
		DocURL:   "https://loom.dev/docs/errors/E109",
	},

	// ============================================
	// Build Errors (E201-E219)
	// ============================================

	"E201": {
		Category: CategoryBuild,
		Message:  "Target build failed",
		Detail:   "The bundler reported an error while compiling a target. The whole production build is aborted.",
		DocURL:   "https://loom.dev/docs/errors/E201",
	},
	"E202": {
		Category: CategoryBuild,
		Message:  "Bundler not found",
		Detail:   "The configured bundler binary is not installed or not in PATH.",
		DocURL:   "https://loom.dev/docs/errors/E202",
	},
	"E203": {
		Category: CategoryBuild,
		Message:  "Output directory not writable",
		Detail:   "The build output root could not be created or cleaned.",
		DocURL:   "https://loom.dev/docs/errors/E203",
	},
	"E204": {
		Category: CategoryBuild,
		Message:  "Manifest synthesis failed",
		Detail:   "The production manifest module could not be generated from the build outputs.",
		DocURL:   "https://loom.dev/docs/errors/E204",
	},
	"E205": {
		Category: CategoryBuild,
		Message:  "No entry output",
		Detail:   "The client build completed but reported no entry output file.",
		DocURL:   "https://loom.dev/docs/errors/E205",
	},

	// ============================================
	// Runtime Load Errors (E301-E319)
	// ============================================

	"E301": {
		Category: CategoryRuntimeLoad,
		Message:  "Module load failed",
		Detail:   "The live transformer could not produce a working module for the target. This usually means a syntax error or throwing top-level code.",
		DocURL:   "https://loom.dev/docs/errors/E301",
	},
	"E302": {
		Category: CategoryRuntimeLoad,
		Message:  "Runtime not found",
		Detail:   "The configured module runtime binary is not installed or not in PATH.",
		DocURL:   "https://loom.dev/docs/errors/E302",
	},
	"E303": {
		Category: CategoryRuntimeLoad,
		Message:  "Module evaluation failed",
		Detail:   "The module compiled but failed while evaluating, before a handler could be produced.",
		DocURL:   "https://loom.dev/docs/errors/E303",
	},

	// ============================================
	// Handler Errors (E401-E419)
	// ============================================

	"E401": {
		Category: CategoryHandler,
		Message:  "Handler returned an error",
		Detail:   "The target's handler was invoked and returned an error. In development this becomes an HTTP 500 with a trace; in production it propagates to the caller.",
		DocURL:   "https://loom.dev/docs/errors/E401",
	},
	"E402": {
		Category: CategoryHandler,
		Message:  "Handler panicked",
		Detail:   "The target's handler panicked during invocation.",
		DocURL:   "https://loom.dev/docs/errors/E402",
	},

	// ============================================
	// CLI Errors (E501-E519)
	// ============================================

	"E501": {
		Category: CategoryCLI,
		Message:  "Not a loom project",
		Detail:   "No loom.json found in this directory or any parent directory.",
		DocURL:   "https://loom.dev/docs/errors/E501",
	},
	"E502": {
		Category: CategoryCLI,
		Message:  "Directory already exists",
		Detail:   "The scaffold destination already exists and is not empty.",
		DocURL:   "https://loom.dev/docs/errors/E502",
	},
	"E503": {
		Category: CategoryCLI,
		Message:  "Deploy not configured",
		Detail:   "loom deploy needs a bucket in the \"deploy\" section of loom.json.",
		DocURL:   "https://loom.dev/docs/errors/E503",
	},
	"E504": {
		Category: CategoryCLI,
		Message:  "Invalid project name",
		Detail:   "Project names must be non-empty and contain no path separators.",
		DocURL:   "https://loom.dev/docs/errors/E504",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
