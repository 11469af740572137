package handler

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/geometry"
	"github.com/seaburr/cookie-cutter-maker/model"
	"github.com/seaburr/cookie-cutter-maker/service"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

// Handler wires the HTTP API to the pipeline services.
type Handler struct {
	cfg   *config.Config
	trace *service.TraceService
	mesh  *service.MeshService
	rembg service.BackgroundRemover
	cache *service.RedisService // nil when redis is unavailable
}

func NewHandler(cfg *config.Config, trace *service.TraceService, mesh *service.MeshService, rembg service.BackgroundRemover, cache *service.RedisService) *Handler {
	return &Handler{cfg: cfg, trace: trace, mesh: mesh, rembg: rembg, cache: cache}
}

// traceResult bundles everything one trace run produces.
type traceResult struct {
	record  *model.TraceRecord
	polygon *geometry.Polygon
	jobDir  string
	pngPath string
	cached  bool
}

// Trace handles POST /api/v1/trace: image upload in, SVG outline out.
func (h *Handler) Trace(c *gin.Context) {
	res, ok := h.runTrace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, model.TraceResponse{
		Success: true,
		Message: "traced",
		Data: &model.TraceData{
			JobID:          res.record.JobID,
			PNG:            h.fileURL(res.pngPath),
			SVG:            h.fileURL(res.record.SVGPath),
			ExtractionMode: res.record.Mode,
			Warning:        res.record.Warning,
			Cached:         res.cached,
		},
	})
}

// Mesh handles POST /api/v1/mesh: a polygon (inline or by cached trace key)
// plus dimensional parameters in, an STL out.
func (h *Handler) Mesh(c *gin.Context) {
	var req struct {
		TraceKey string               `json:"trace_key"`
		Polygon  *model.PolygonRecord `json:"polygon"`
		Params   *model.MeshParams    `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var pg *geometry.Polygon
	jobID := utils.NewJobID()
	switch {
	case req.Polygon != nil:
		pg = req.Polygon.Polygon()
	case req.TraceKey != "":
		rec := h.cachedTrace(c, req.TraceKey)
		if rec == nil {
			h.fail(c, http.StatusNotFound, "trace not found for key", nil)
			return
		}
		pg = rec.Polygon.Polygon()
		jobID = rec.JobID
	default:
		h.fail(c, http.StatusBadRequest, "polygon or trace_key required", nil)
		return
	}

	params := h.meshParams(req.Params)
	jobDir, err := h.ensureJobDir(jobID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "failed to create job directory", err)
		return
	}
	stlPath := filepath.Join(jobDir, "cutter.stl")
	if err := h.mesh.Synthesize(pg, stlPath, params); err != nil {
		h.meshError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.PipelineResponse{
		Success: true,
		Message: "mesh generated",
		Data: &model.PipelineData{
			JobID: jobID,
			STL:   h.fileURL(stlPath),
		},
	})
}

// Pipeline handles POST /api/v1/pipeline: image in, STL (plus SVG preview and
// a zip bundle) out in one shot.
func (h *Handler) Pipeline(c *gin.Context) {
	res, ok := h.runTrace(c)
	if !ok {
		return
	}

	params := h.formMeshParams(c)
	stlPath := filepath.Join(res.jobDir, "cutter.stl")
	if err := h.mesh.Synthesize(res.polygon, stlPath, params); err != nil {
		h.meshError(c, err)
		return
	}

	zipPath := filepath.Join(res.jobDir, "bundle.zip")
	if err := zipFiles(zipPath, res.pngPath, res.record.SVGPath, filepath.Join(res.jobDir, "polygon.json"), stlPath); err != nil {
		utils.Logger.Warn("failed to build zip bundle", zap.Error(err))
		zipPath = ""
	}

	c.JSON(http.StatusOK, model.PipelineResponse{
		Success: true,
		Message: "pipeline complete",
		Data: &model.PipelineData{
			JobID:          res.record.JobID,
			PNG:            h.fileURL(res.pngPath),
			SVG:            h.fileURL(res.record.SVGPath),
			STL:            h.fileURL(stlPath),
			Zip:            h.fileURL(zipPath),
			ExtractionMode: res.record.Mode,
			Warning:        res.record.Warning,
		},
	})
}

// CachedTrace handles GET /api/v1/trace/:key.
func (h *Handler) CachedTrace(c *gin.Context) {
	rec := h.cachedTrace(c, c.Param("key"))
	if rec == nil {
		h.fail(c, http.StatusNotFound, "trace not found for key", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "ok", "data": rec})
}

// Features handles GET /api/v1/features: extraction modes and model status.
func (h *Handler) Features(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "ok",
		"data": gin.H{
			"extraction_modes": []model.ExtractionMode{
				model.ModeAuto, model.ModeBinary, model.ModeUniformBG, model.ModeComplex,
			},
			"background_removal": h.rembg != nil && h.rembg.Available(),
			"cache":              h.cache != nil,
		},
	})
}

// runTrace performs the shared upload → extract → trace flow. On failure it
// writes the error response itself and returns ok=false.
func (h *Handler) runTrace(c *gin.Context) (*traceResult, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "image file required", err)
		return nil, false
	}
	if file.Size > h.cfg.Upload.MaxSize {
		h.fail(c, http.StatusRequestEntityTooLarge, "image too large", nil)
		return nil, false
	}
	if !h.allowedType(file.Header.Get("Content-Type")) {
		h.fail(c, http.StatusBadRequest, "unsupported image type", nil)
		return nil, false
	}

	mode, err := model.ParseExtractionMode(c.PostForm("mode"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
		return nil, false
	}
	opts := service.TraceOptions{
		Mode:            mode,
		Threshold:       formInt(c, "threshold", 0),
		DeltaEThreshold: formFloat(c, "delta_e_threshold", 0),
		SimplifyEpsilon: formFloat(c, "simplify_epsilon", 0),
		SmoothRadius:    formFloat(c, "smooth_radius", 0),
	}

	jobID := utils.NewJobID()
	jobDir, err := h.ensureJobDir(jobID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "failed to create job directory", err)
		return nil, false
	}
	pngPath := filepath.Join(jobDir, "input"+strings.ToLower(filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, pngPath); err != nil {
		h.fail(c, http.StatusInternalServerError, "failed to store upload", err)
		return nil, false
	}

	cacheKey := h.traceCacheKey(pngPath, opts)
	if rec := h.cachedTrace(c, cacheKey); rec != nil {
		if _, err := os.Stat(rec.SVGPath); err == nil {
			return &traceResult{
				record:  rec,
				polygon: rec.Polygon.Polygon(),
				jobDir:  filepath.Dir(rec.SVGPath),
				pngPath: pngPath,
				cached:  true,
			}, true
		}
	}

	svgPath := filepath.Join(jobDir, "outline.svg")
	pg, _, effectiveMode, warning, err := h.trace.Trace(pngPath, svgPath, opts)
	if err != nil {
		h.traceErrorResponse(c, err)
		return nil, false
	}

	rec := &model.TraceRecord{
		JobID:     jobID,
		Name:      file.Filename,
		Mode:      effectiveMode,
		Warning:   warning,
		SVGPath:   svgPath,
		Polygon:   model.NewPolygonRecord(pg),
		Timestamp: time.Now().Unix(),
	}
	h.persistTrace(c, cacheKey, rec, jobDir)

	return &traceResult{record: rec, polygon: pg, jobDir: jobDir, pngPath: pngPath}, true
}

// persistTrace writes polygon.json beside the SVG and caches the record.
// Both are best-effort; the trace already succeeded.
func (h *Handler) persistTrace(c *gin.Context, cacheKey string, rec *model.TraceRecord, jobDir string) {
	if data, err := json.MarshalIndent(rec.Polygon, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(jobDir, "polygon.json"), data, 0644); err != nil {
			utils.Logger.Warn("failed to write polygon.json", zap.Error(err))
		}
	}
	if h.cache != nil {
		if err := h.cache.SetTrace(c.Request.Context(), cacheKey, rec); err != nil {
			utils.Logger.Warn("failed to cache trace", zap.Error(err))
		}
	}
}

func (h *Handler) cachedTrace(c *gin.Context, key string) *model.TraceRecord {
	if h.cache == nil || key == "" {
		return nil
	}
	rec, err := h.cache.GetTrace(c.Request.Context(), key)
	if err != nil {
		utils.Logger.Warn("trace cache lookup failed", zap.Error(err))
		return nil
	}
	return rec
}

// traceCacheKey derives the cache key from the image content and the
// effective trace options.
func (h *Handler) traceCacheKey(imagePath string, opts service.TraceOptions) string {
	md5sum, err := utils.FileMD5(imagePath)
	if err != nil {
		return ""
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return ""
	}
	return md5sum + ":" + utils.BytesMD5(optsJSON)
}

func (h *Handler) ensureJobDir(jobID string) (string, error) {
	dir := filepath.Join(h.cfg.Output.Dir, jobID)
	return dir, os.MkdirAll(dir, 0755)
}

func (h *Handler) allowedType(contentType string) bool {
	for _, t := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// fileURL maps an on-disk output path to its /files URL.
func (h *Handler) fileURL(path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(h.cfg.Output.Dir, path)
	if err != nil {
		return ""
	}
	return "/files/" + filepath.ToSlash(rel)
}

// meshParams fills unset request parameters with the configured defaults.
func (h *Handler) meshParams(req *model.MeshParams) model.MeshParams {
	def := h.mesh.DefaultParams()
	if req == nil {
		return def
	}
	p := *req
	if p.TargetWidthMM == 0 {
		p.TargetWidthMM = def.TargetWidthMM
	}
	if p.WallMM == 0 {
		p.WallMM = def.WallMM
	}
	if p.TotalHeightMM == 0 {
		p.TotalHeightMM = def.TotalHeightMM
	}
	if p.FlangeHeightMM == 0 {
		p.FlangeHeightMM = def.FlangeHeightMM
	}
	if p.FlangeOutMM == 0 {
		p.FlangeOutMM = def.FlangeOutMM
	}
	if p.CleanupMM == 0 {
		p.CleanupMM = def.CleanupMM
	}
	if p.TipSmoothMM == 0 {
		p.TipSmoothMM = def.TipSmoothMM
	}
	if p.BevelHeightMM == 0 {
		p.BevelHeightMM = def.BevelHeightMM
	}
	if p.BevelTopWallMM == 0 {
		p.BevelTopWallMM = def.BevelTopWallMM
	}
	if p.Samples == 0 {
		p.Samples = def.Samples
	}
	if p.MinComponentAreaMM2 == 0 {
		p.MinComponentAreaMM2 = def.MinComponentAreaMM2
	}
	return p
}

// formMeshParams reads mesh parameters from multipart form values.
func (h *Handler) formMeshParams(c *gin.Context) model.MeshParams {
	def := h.mesh.DefaultParams()
	return model.MeshParams{
		TargetWidthMM:       formFloat(c, "width_mm", def.TargetWidthMM),
		WallMM:              formFloat(c, "wall_mm", def.WallMM),
		TotalHeightMM:       formFloat(c, "total_h_mm", def.TotalHeightMM),
		FlangeHeightMM:      formFloat(c, "flange_h_mm", def.FlangeHeightMM),
		FlangeOutMM:         formFloat(c, "flange_out_mm", def.FlangeOutMM),
		CleanupMM:           formFloat(c, "cleanup_mm", def.CleanupMM),
		TipSmoothMM:         formFloat(c, "tip_smooth_mm", def.TipSmoothMM),
		BevelHeightMM:       formFloat(c, "bevel_h_mm", def.BevelHeightMM),
		BevelTopWallMM:      formFloat(c, "bevel_top_wall_mm", def.BevelTopWallMM),
		Samples:             formInt(c, "samples", def.Samples),
		KeepHoles:           formBool(c, "keep_holes", false),
		MinComponentAreaMM2: formFloat(c, "min_component_area_mm2", def.MinComponentAreaMM2),
	}
}

func (h *Handler) traceErrorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrNoContours) || errors.Is(err, service.ErrInvalidPolygon) {
		status = http.StatusUnprocessableEntity
	}
	h.fail(c, status, "tracing failed", err)
}

func (h *Handler) meshError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyPolygon),
		errors.Is(err, service.ErrZeroWidth),
		errors.Is(err, service.ErrInnerCollapsed):
		h.fail(c, http.StatusUnprocessableEntity, "mesh synthesis failed", err)
	case strings.Contains(err.Error(), "server busy"):
		h.fail(c, http.StatusServiceUnavailable, "server busy", err)
	default:
		h.fail(c, http.StatusInternalServerError, "mesh synthesis failed", err)
	}
}

func (h *Handler) fail(c *gin.Context, status int, msg string, err error) {
	resp := model.ErrorResponse{Success: false, Message: msg}
	if err != nil {
		resp.Error = err.Error()
		utils.Logger.Warn(msg, zap.Error(err), zap.Int("status", status))
	}
	c.JSON(status, resp)
}

func formFloat(c *gin.Context, name string, def float64) float64 {
	if s := c.PostForm(name); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return def
}

func formInt(c *gin.Context, name string, def int) int {
	if s := c.PostForm(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return def
}

func formBool(c *gin.Context, name string, def bool) bool {
	if s := c.PostForm(name); s != "" {
		if v, err := strconv.ParseBool(s); err == nil {
			return v
		}
	}
	return def
}

// zipFiles bundles the given files (missing ones are skipped) into a zip.
func zipFiles(zipPath string, files ...string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create zip: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	defer w.Close()
	for _, f := range files {
		if f == "" {
			continue
		}
		src, err := os.Open(f)
		if err != nil {
			continue
		}
		entry, err := w.Create(filepath.Base(f))
		if err != nil {
			src.Close()
			return fmt.Errorf("failed to add zip entry: %w", err)
		}
		_, err = io.Copy(entry, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("failed to write zip entry: %w", err)
		}
	}
	return nil
}
