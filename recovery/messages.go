package recovery

import "context"

type localeKey struct{}

// WithLocale returns a context carrying the BCP 47 language tag used to
// localize user-facing recovery messages. Unknown or absent locales fall
// back to English.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFrom extracts the locale set by [WithLocale], or "en".
func LocaleFrom(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey{}).(string); ok && v != "" {
		return v
	}
	return "en"
}

// catalog holds the user-facing message per kind per locale. Every kind has
// an English entry so a notifying result is never messageless.
var catalog = map[string]map[ErrorKind]string{
	"en": {
		KindLocalStoreUnavailable: "Local storage is unavailable. The app will run in a limited mode.",
		KindNetworkTimeout:        "The network is unreachable. Please check your connection and try again.",
		KindAuthExpired:           "Your session has expired. Please sign in again.",
		KindStorageFull:           "Device storage is full. Free up some space and try again.",
		KindMemoryPressure:        "The device is low on memory. Close unused apps and try again.",
		KindSyncConflict:          "Your data was out of date and has been reloaded.",
		KindPlatformBridgeFault:   "An internal error occurred. Please restart the app.",
		KindUnknown:               "Something went wrong. Please try again.",
	},
	"es": {
		KindLocalStoreUnavailable: "El almacenamiento local no está disponible. La aplicación funcionará en modo limitado.",
		KindNetworkTimeout:        "No hay conexión de red. Comprueba tu conexión e inténtalo de nuevo.",
		KindAuthExpired:           "Tu sesión ha expirado. Inicia sesión de nuevo.",
		KindStorageFull:           "El almacenamiento del dispositivo está lleno. Libera espacio e inténtalo de nuevo.",
		KindMemoryPressure:        "El dispositivo tiene poca memoria. Cierra aplicaciones e inténtalo de nuevo.",
		KindSyncConflict:          "Tus datos estaban desactualizados y se han recargado.",
		KindPlatformBridgeFault:   "Se produjo un error interno. Reinicia la aplicación.",
		KindUnknown:               "Algo salió mal. Inténtalo de nuevo.",
	},
	"fr": {
		KindLocalStoreUnavailable: "Le stockage local est indisponible. L'application fonctionnera en mode limité.",
		KindNetworkTimeout:        "Le réseau est inaccessible. Vérifiez votre connexion et réessayez.",
		KindAuthExpired:           "Votre session a expiré. Veuillez vous reconnecter.",
		KindStorageFull:           "Le stockage de l'appareil est plein. Libérez de l'espace et réessayez.",
		KindMemoryPressure:        "L'appareil manque de mémoire. Fermez des applications et réessayez.",
		KindSyncConflict:          "Vos données étaient obsolètes et ont été rechargées.",
		KindPlatformBridgeFault:   "Une erreur interne est survenue. Veuillez redémarrer l'application.",
		KindUnknown:               "Une erreur est survenue. Veuillez réessayer.",
	},
}

// userMessage resolves the localized message for kind, falling back to the
// English catalog for unknown locales.
func userMessage(ctx context.Context, kind ErrorKind) string {
	locale := LocaleFrom(ctx)
	if msgs, ok := catalog[locale]; ok {
		if msg, ok := msgs[kind]; ok {
			return msg
		}
	}
	return catalog["en"][kind]
}
