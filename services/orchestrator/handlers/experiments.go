// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/themariolinml/Pixel-Groove/services/experiments"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/datatypes"
)

// maxReferenceImageSize caps reference uploads; anything larger is almost
// certainly not a style reference.
const maxReferenceImageSize = 20 << 20

// CreateExperiment handles POST /experiments.
func CreateExperiment(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateExperimentRequest
		if !bindAndValidate(c, &req) {
			return
		}
		e, err := ops.Create(c.Request.Context(), req.Name, req.Brief)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// ListExperiments handles GET /experiments.
func ListExperiments(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := ops.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"experiments": list})
	}
}

// GetExperiment handles GET /experiments/:experiment_id.
func GetExperiment(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := ops.Get(c.Request.Context(), c.Param("experiment_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// DeleteExperiment handles DELETE /experiments/:experiment_id, cascading
// through hook graphs and their media.
func DeleteExperiment(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ops.Delete(c.Request.Context(), c.Param("experiment_id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "experiment deleted"})
	}
}

// GenerateGenome handles POST /experiments/:experiment_id/genome. A body
// with a non-empty brief replaces the stored brief before extraction.
func GenerateGenome(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GenerateGenomeRequest
		if c.Request.ContentLength > 0 {
			if !bindAndValidate(c, &req) {
				return
			}
		}
		e, err := ops.GenerateGenome(c.Request.Context(), c.Param("experiment_id"), req.Brief)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// UpdateGenome handles PUT /experiments/:experiment_id/genome, replacing
// the genome with a hand-edited one.
func UpdateGenome(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UpdateGenomeRequest
		if !bindAndValidate(c, &req) {
			return
		}
		e, err := ops.UpdateGenome(c.Request.Context(), c.Param("experiment_id"), req.Genome)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// UpdateExperimentConfig handles PATCH /experiments/:experiment_id/config.
func UpdateExperimentConfig(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UpdateExperimentConfigRequest
		if !bindAndValidate(c, &req) {
			return
		}
		e, err := ops.UpdateConfig(c.Request.Context(), c.Param("experiment_id"), experiments.ConfigUpdate{
			ArtifactType:  req.ArtifactType,
			ImageModel:    req.ImageModel,
			VideoModel:    req.VideoModel,
			ImagesPerHook: req.ImagesPerHook,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// UploadReferenceImage handles POST /experiments/:experiment_id/reference-image
// as a multipart form with a "file" field.
func UploadReferenceImage(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field: " + err.Error()})
			return
		}
		if file.Size > maxReferenceImageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference image exceeds 20MB"})
			return
		}
		f, err := file.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			respondError(c, err)
			return
		}

		url, err := ops.UploadReferenceImage(c.Request.Context(), c.Param("experiment_id"), data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.ReferenceImageResponse{URL: url})
	}
}

// BuildHooks handles POST /experiments/:experiment_id/build. The architect
// call can take minutes; a concurrent DELETE .../build cancels it, which
// surfaces here as 499.
func BuildHooks(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.BuildHooksRequest
		if c.Request.ContentLength > 0 {
			if !bindAndValidate(c, &req) {
				return
			}
		}
		e, err := ops.BuildHooks(c.Request.Context(), c.Param("experiment_id"), req.Count)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// CancelBuild handles DELETE /experiments/:experiment_id/build. Cancelling
// an experiment with no running build is a no-op.
func CancelBuild(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		ops.CancelBuild(c.Param("experiment_id"))
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "build cancelled"})
	}
}

// UpdateHookStatus handles PATCH /experiments/:experiment_id/hooks/:hook_id.
func UpdateHookStatus(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UpdateHookStatusRequest
		if !bindAndValidate(c, &req) {
			return
		}
		e, err := ops.UpdateHookStatus(c.Request.Context(), c.Param("experiment_id"), c.Param("hook_id"), experiments.HookStatus(req.Status))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// SelectAllHooks handles POST /experiments/:experiment_id/select-all.
func SelectAllHooks(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := ops.SelectAllHooks(c.Request.Context(), c.Param("experiment_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// DeselectAllHooks handles POST /experiments/:experiment_id/deselect-all.
func DeselectAllHooks(ops *experiments.Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := ops.DeselectAllHooks(c.Request.Context(), c.Param("experiment_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}
