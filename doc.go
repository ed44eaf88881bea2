/*
go-detpipe is a backend agnostic object detection pipeline.  It pulls RGB
frames from a pluggable source (still image, video file, camera device, or
GStreamer pipeline), runs them through a detection model, decodes the raw
multi-head tensor output into bounding boxes with class and confidence, and
writes annotated results to a pluggable sink (image file, video file,
directory archive, or GStreamer pipeline).

Sources, models and sinks are selected at runtime from URI style locators
such as video:///path/to/clip.mp4 or folder:///var/capture?record=name, so
new backends can be added without touching the pipeline core.

See the cmd/detpipe binary for end to end usage.
*/
package detpipe
