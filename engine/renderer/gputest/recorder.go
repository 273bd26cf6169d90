package gputest

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Command is one recorded command. Args holds the call arguments in order.
type Command struct {
	Name string
	Args []any
}

// Recorder is a metadata.CommandRecorder that keeps the recorded commands in order.
type Recorder struct {
	Commands []Command
}

func (r *Recorder) record(name string, args ...any) {
	r.Commands = append(r.Commands, Command{Name: name, Args: args})
}

// Count returns how many commands named name were recorded.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, c := range r.Commands {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Find returns the recorded commands named name.
func (r *Recorder) Find(name string) []Command {
	var out []Command
	for _, c := range r.Commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the command names in recording order.
func (r *Recorder) Names() []string {
	names := make([]string, len(r.Commands))
	for i, c := range r.Commands {
		names[i] = c.Name
	}
	return names
}

func (r *Recorder) BindPipeline(point metadata.PipelineBindPoint, pipeline metadata.Pipeline) {
	r.record("BindPipeline", point, pipeline)
}

func (r *Recorder) BindDescriptorSets(point metadata.PipelineBindPoint, layout metadata.PipelineLayout, firstSet uint32, sets []metadata.DescriptorSet) {
	r.record("BindDescriptorSets", point, layout, firstSet, sets)
}

func (r *Recorder) PushConstants(layout metadata.PipelineLayout, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	r.record("PushConstants", layout, stages, offset, append([]byte(nil), data...))
}

func (r *Recorder) TransitionImage(image metadata.Image, layout metadata.ImageLayout) {
	if img, ok := image.(*Image); ok {
		img.layout = layout
	}
	r.record("TransitionImage", image, layout)
}

func (r *Recorder) ClearColorImage(image metadata.Image, color metadata.Color) {
	switch image.Layout() {
	case metadata.ImageLayoutGeneral, metadata.ImageLayoutTransferDst:
	default:
		panic(fmt.Sprintf("clear of image in layout %d", image.Layout()))
	}
	r.record("ClearColorImage", image, color)
}

func (r *Recorder) TraceRays(tables metadata.ShaderBindingTables, width, height, depth uint32) {
	r.record("TraceRays", tables, width, height, depth)
}

func (r *Recorder) BlitImage(src, dst metadata.Image, filter metadata.Filter) {
	if src.Layout() != metadata.ImageLayoutTransferSrc || dst.Layout() != metadata.ImageLayoutTransferDst {
		panic(fmt.Sprintf("blit with layouts %d -> %d", src.Layout(), dst.Layout()))
	}
	r.record("BlitImage", src, dst, filter)
}

func (r *Recorder) BeginRenderPass(pass metadata.RenderPass, framebuffer metadata.Framebuffer, area metadata.Rect) {
	r.record("BeginRenderPass", pass, framebuffer, area)
}

func (r *Recorder) EndRenderPass() {
	r.record("EndRenderPass")
}

func (r *Recorder) SetViewport(viewport metadata.Viewport) {
	r.record("SetViewport", viewport)
}

func (r *Recorder) SetScissor(scissor metadata.Rect) {
	r.record("SetScissor", scissor)
}

func (r *Recorder) BindVertexBuffer(buffer metadata.Buffer, offset uint64) {
	r.record("BindVertexBuffer", buffer, offset)
}

func (r *Recorder) BindIndexBuffer(buffer metadata.Buffer, offset uint64) {
	r.record("BindIndexBuffer", buffer, offset)
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.record("DrawIndexed", indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}
