package design

import (
    . "goa.design/goa/v3/dsl"
)

// API definition
var _ = API("sylph", func() {
    Title("Sylph Biometric Vision Service")
    Description("Turns per-frame face and pose landmarks into breathing, posture and restlessness readings")
    Version("1.0")
    Server("sylph", func() {
        Host("localhost", func() {
            URI("http://localhost:8080")
        })
    })
})

// Error types
var NotFoundError = Type("NotFoundError", func() {
    Description("Resource not found error")
    Field(1, "error", String, "Error message")
    Required("error")
})

var BadRequestError = Type("BadRequestError", func() {
    Description("Bad request error")
    Field(1, "error", String, "Error message")
    Required("error")
})

var UnauthorizedError = Type("UnauthorizedError", func() {
    Description("Missing or invalid credentials")
    Field(1, "error", String, "Error message")
    Required("error")
})

var LimitError = Type("LimitError", func() {
    Description("Concurrent session limit reached")
    Field(1, "error", String, "Error message")
    Required("error")
})

var ThrottledError = Type("ThrottledError", func() {
    Description("Frames arriving faster than the session's target rate")
    Field(1, "error", String, "Error message")
    Required("error")
})

var NotReadyError = Type("NotReadyError", func() {
    Description("Service is not ready to serve traffic")
    Field(1, "error", String, "Error message")
    Required("error")
})

// Data types
var LandmarkPoint = Type("LandmarkPoint", func() {
    Description("One landmark in normalized image coordinates")
    Field(1, "x", Float64, "Horizontal position (0-1)")
    Field(2, "y", Float64, "Vertical position (0-1)")
    Field(3, "z", Float64, "Relative depth")
    Field(4, "visibility", Float64, "Detection visibility (0-1)")
    Required("x", "y")
})

var LandmarkFrame = Type("LandmarkFrame", func() {
    Description("One frame of detected landmarks")
    Field(1, "face", ArrayOf(LandmarkPoint), "Face mesh points")
    Field(2, "pose", ArrayOf(LandmarkPoint), "Body pose points")
    Field(3, "width", Int, "Source image width in pixels")
    Field(4, "height", Int, "Source image height in pixels")
    Field(5, "seq", UInt64, "Frame sequence number")
    Field(6, "confidence", Float64, "Detection confidence (0-1)")
    Field(7, "timestamp", String, "Capture timestamp", func() {
        Format(FormatDateTime)
    })
    Required("width", "height", "timestamp")
})

var VisionOptions = Type("VisionOptions", func() {
    Description("Engine configuration")
    Field(1, "tier", String, "Capability tier", func() {
        Enum("loading", "basic", "standard", "premium")
    })
    Field(2, "enabledFeatures", ArrayOf(String), "Analyses to run")
    Field(3, "targetFps", Float64, "Target processing rate")
    Field(4, "adaptiveQuality", Boolean, "Degrade tier under load")
    Field(5, "mobileOptimized", Boolean, "Apply mobile caps")
    Field(6, "useWorkerOffload", Boolean, "Run analyses on the worker pool")
    Field(7, "gpuAcceleration", Boolean, "Request GPU inference")
})

var SessionInfo = Type("SessionInfo", func() {
    Description("Listing view of a live session")
    Field(1, "id", String, "Session identifier", func() {
        Format(FormatUUID)
    })
    Field(2, "createdAt", String, "Creation timestamp", func() {
        Format(FormatDateTime)
    })
    Field(3, "lastActivity", String, "Last frame or touch", func() {
        Format(FormatDateTime)
    })
    Field(4, "frames", UInt64, "Frames processed")
    Field(5, "tier", String, "Active tier")
    Field(6, "running", Boolean, "Whether the engine is running")
    Required("id", "createdAt", "frames", "running")
})

var SessionSummary = Type("SessionSummary", func() {
    Description("Aggregate read of a session over its rolling windows")
    Field(1, "sessionId", String, "Session identifier")
    Field(2, "startedAt", String, "Session start", func() {
        Format(FormatDateTime)
    })
    Field(3, "durationSeconds", Float64, "Elapsed time")
    Field(4, "totalFrames", UInt64, "Frames processed")
    Field(5, "avgConfidence", Float64, "Mean detection confidence")
    Field(6, "avgPosture", Float64, "Mean posture quality (0-100)")
    Field(7, "avgMovement", Float64, "Mean movement level")
    Field(8, "avgBreathingRate", Float64, "Mean breathing rate (breaths/min)")
    Field(9, "stillnessPct", Float64, "Share of still samples (0-100)")
    Field(10, "consistencyScore", Float64, "Breathing steadiness (0-100)")
    Required("sessionId", "startedAt", "totalFrames")
})

var CalibrationProfile = Type("CalibrationProfile", func() {
    Description("Per-person neutral references for restlessness analysis")
    Field(1, "profile", String, "Profile name")
    Field(2, "neutralEar", Float64, "Resting eye aspect ratio")
    Field(3, "neutralMouthWidth", Float64, "Resting mouth width")
    Field(4, "neutralBrowHeight", Float64, "Resting brow height")
    Field(5, "shoulderTiltOffsetDeg", Float64, "Habitual shoulder tilt in degrees")
    Field(6, "updatedAt", String, "Last change", func() {
        Format(FormatDateTime)
    })
    Required("profile", "neutralEar", "neutralMouthWidth", "neutralBrowHeight")
})

// Health check service
var _ = Service("health", func() {
    Description("Health check endpoints for Kubernetes probes")

    Method("healthz", func() {
        Description("Liveness probe endpoint - indicates if the service is alive")
        Result(Empty)
        HTTP(func() {
            GET("/healthz")
            Response(StatusOK)
        })
    })

    Method("readyz", func() {
        Description("Readiness probe endpoint - indicates if the store is reachable")
        Result(Empty)
        Error("not_ready", NotReadyError, "Store unavailable")
        HTTP(func() {
            GET("/readyz")
            Response(StatusOK)
            Response("not_ready", StatusServiceUnavailable)
        })
    })

    Method("ping", func() {
        Description("Connectivity check")
        Result(func() {
            Field(1, "message", String, "Always pong")
            Field(2, "timestamp", String, "Server time")
            Required("message", "timestamp")
        })
        HTTP(func() {
            GET("/ping")
            Response(StatusOK)
        })
    })
})

// Authentication service
var _ = Service("auth", func() {
    Description("Token issuance for the protected endpoints")

    Method("login", func() {
        Description("Exchange credentials for a bearer token")
        Payload(func() {
            Field(1, "username", String, "Account name")
            Field(2, "password", String, "Account password")
            Required("username", "password")
        })
        Result(func() {
            Field(1, "token", String, "Signed bearer token")
            Field(2, "expiresAt", Int64, "Expiry as Unix seconds")
            Required("token", "expiresAt")
        })
        Error("unauthorized", UnauthorizedError, "Invalid credentials or auth disabled")
        HTTP(func() {
            POST("/api/auth/login")
            Response(StatusOK)
            Response("unauthorized", StatusUnauthorized)
        })
    })
})

// Vision session service
var _ = Service("vision", func() {
    Description("Landmark ingestion sessions and their configuration")

    Method("start_session", func() {
        Description("Create a processing session, optionally overriding the base options")
        Payload(VisionOptions)
        Result(func() {
            Field(1, "sessionId", String, "New session identifier")
            Field(2, "createdAt", String, "Creation timestamp")
            Field(3, "options", VisionOptions, "Effective options after overrides")
            Required("sessionId", "createdAt", "options")
        })
        Error("limit", LimitError, "Session limit reached")
        HTTP(func() {
            POST("/api/vision/sessions")
            Response(StatusCreated)
            Response("limit", StatusServiceUnavailable)
        })
    })

    Method("list_sessions", func() {
        Description("List live sessions")
        Result(func() {
            Field(1, "sessions", ArrayOf(SessionInfo), "Live sessions")
            Field(2, "count", Int, "Number of live sessions")
            Required("sessions", "count")
        })
        HTTP(func() {
            GET("/api/vision/sessions")
            Response(StatusOK)
        })
    })

    Method("stop_session", func() {
        Description("Stop a session and return its final summary")
        Payload(func() {
            Field(1, "id", String, "Session ID")
            Required("id")
        })
        Result(SessionSummary)
        Error("not_found", NotFoundError, "Session not found")
        HTTP(func() {
            DELETE("/api/vision/sessions/{id}")
            Response(StatusOK)
            Response("not_found", StatusNotFound)
        })
    })

    Method("ingest_frame", func() {
        Description("Push one landmark frame through the session's pipeline")
        Payload(func() {
            Field(1, "id", String, "Session ID")
            Field(2, "frame", LandmarkFrame, "Landmark frame")
            Required("id", "frame")
        })
        Result(Any)
        Error("not_found", NotFoundError, "Session not found")
        Error("bad_request", BadRequestError, "Malformed or invalid frame")
        Error("throttled", ThrottledError, "Frame rate limit")
        HTTP(func() {
            POST("/api/vision/sessions/{id}/frames")
            Response(StatusOK)
            Response("not_found", StatusNotFound)
            Response("bad_request", StatusBadRequest)
            Response("throttled", StatusTooManyRequests)
        })
    })

    Method("summary", func() {
        Description("Aggregate metrics for a live session")
        Payload(func() {
            Field(1, "id", String, "Session ID")
            Required("id")
        })
        Result(SessionSummary)
        Error("not_found", NotFoundError, "Session not found")
        HTTP(func() {
            GET("/api/vision/sessions/{id}/summary")
            Response(StatusOK)
            Response("not_found", StatusNotFound)
        })
    })

    Method("performance", func() {
        Description("Frame-rate, resource and health report for a live session")
        Payload(func() {
            Field(1, "id", String, "Session ID")
            Required("id")
        })
        Result(Any)
        Error("not_found", NotFoundError, "Session not found")
        HTTP(func() {
            GET("/api/vision/sessions/{id}/performance")
            Response(StatusOK)
            Response("not_found", StatusNotFound)
        })
    })

    Method("list_calibrations", func() {
        Description("List stored calibration profiles")
        Result(func() {
            Field(1, "profiles", ArrayOf(CalibrationProfile), "Stored profiles")
            Field(2, "count", Int, "Number of profiles")
            Required("profiles", "count")
        })
        HTTP(func() {
            GET("/api/vision/calibration")
            Response(StatusOK)
        })
    })

    Method("get_calibration", func() {
        Description("Fetch one calibration profile")
        Payload(func() {
            Field(1, "profile", String, "Profile name")
            Required("profile")
        })
        Result(CalibrationProfile)
        Error("not_found", NotFoundError, "Profile not found")
        HTTP(func() {
            GET("/api/vision/calibration/{profile}")
            Response(StatusOK)
            Response("not_found", StatusNotFound)
        })
    })

    Method("put_calibration", func() {
        Description("Create or replace a calibration profile")
        Payload(CalibrationProfile)
        Result(CalibrationProfile)
        Error("bad_request", BadRequestError, "Neutral references out of range")
        HTTP(func() {
            PUT("/api/vision/calibration/{profile}")
            Response(StatusOK)
            Response("bad_request", StatusBadRequest)
        })
    })

    Method("delete_calibration", func() {
        Description("Remove a calibration profile")
        Payload(func() {
            Field(1, "profile", String, "Profile name")
            Required("profile")
        })
        Result(Empty)
        HTTP(func() {
            DELETE("/api/vision/calibration/{profile}")
            Response(StatusNoContent)
        })
    })

    Method("list_presets", func() {
        Description("List stored option presets")
        Result(func() {
            Field(1, "presets", ArrayOf(Any), "Stored presets")
            Field(2, "count", Int, "Number of presets")
            Required("presets", "count")
        })
        HTTP(func() {
            GET("/api/vision/presets")
            Response(StatusOK)
        })
    })

    Method("get_preset", func() {
        Description("Fetch one option preset")
        Payload(func() {
            Field(1, "name", String, "Preset name")
            Required("name")
        })
        Result(Any)
        Error("not_found", NotFoundError, "Preset not found")
        HTTP(func() {
            GET("/api/vision/presets/{name}")
            Response(StatusOK)
            Response("not_found", StatusNotFound)
        })
    })

    Method("put_preset", func() {
        Description("Create or replace an option preset")
        Payload(VisionOptions)
        Result(Any)
        HTTP(func() {
            PUT("/api/vision/presets/{name}")
            Response(StatusOK)
        })
    })

    Method("delete_preset", func() {
        Description("Remove an option preset")
        Payload(func() {
            Field(1, "name", String, "Preset name")
            Required("name")
        })
        Result(Empty)
        HTTP(func() {
            DELETE("/api/vision/presets/{name}")
            Response(StatusNoContent)
        })
    })
})

// System status service
var _ = Service("system", func() {
    Description("System status and monitoring")

    Method("status", func() {
        Description("Get overall service status")
        Result(func() {
            Field(1, "status", String, "Always ok when serving")
            Field(2, "version", String, "Service version")
            Field(3, "uptimeSeconds", Float64, "Time since boot")
            Field(4, "sessions", Int, "Live session count")
            Field(5, "wsClients", Int, "Connected snapshot subscribers")
            Field(6, "authEnabled", Boolean, "Whether auth is enforced")
            Required("status", "version", "uptimeSeconds", "sessions")
        })
        HTTP(func() {
            GET("/api/system/status")
            Response(StatusOK)
        })
    })
})
